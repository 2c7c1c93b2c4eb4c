package authflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spool/internal/authflow"
	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/outcome"
	"spool/internal/queue"
	"spool/internal/testsupport"
)

const quickstartScript = `#!/bin/sh
echo 'Please enter a name for your primary profile [audible]: '
read name
echo 'Enter a country code for the profile: '
read cc
echo 'Please enter a name for the auth file: '
read af
echo 'Do you want to encrypt the auth file? [y/N]: '
read enc
echo 'Do you want to login with external browser? [Y/n]: '
read br
echo 'Do you want to login with a pre-Amazon Audible account? [y/N]: '
read pre
echo 'Do you want to continue? [Y/n]: '
read ok
echo 'Please copy the following url and insert it into a web browser:'
echo 'https://www.amazon.com/ap/signin?openid.oa2=stub'
read response
echo "Successfully registered $name."
exit 0
`

func newMachine(t *testing.T, script string) (*authflow.Machine, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cfg.Fetcher.Binary = testsupport.WriteExecutable(t, t.TempDir(), "auth-stub", script)
	return authflow.New(cfg, store, bus.New(nil), nil), store, cfg
}

func waitUnlocked(t *testing.T, m *authflow.Machine) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for m.Locked() {
		if time.Now().After(deadline) {
			t.Fatal("dialogue lock never released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFullDialogueRegistersAccount(t *testing.T) {
	m, store, cfg := newMachine(t, quickstartScript)
	ctx := context.Background()

	loginURL, err := m.Begin(ctx, "alice")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if loginURL != "https://www.amazon.com/ap/signin?openid.oa2=stub" {
		t.Fatalf("login url = %q", loginURL)
	}
	if !m.Locked() {
		t.Fatal("machine unlocked between phases")
	}
	if _, err := m.Begin(ctx, "bob"); !errors.Is(err, authflow.ErrBusy) {
		t.Fatalf("concurrent begin = %v, want ErrBusy", err)
	}

	accountID, err := m.Complete(ctx, "https://www.amazon.com/ap/signin?openid.result=ok")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if accountID != "alice" {
		t.Fatalf("account id = %q, want alice", accountID)
	}

	account, err := store.GetAccount(ctx, "alice")
	if err != nil || account == nil {
		t.Fatalf("account not stored: %+v %v", account, err)
	}
	if !account.CredentialPresent || account.AuthFile != "alice.json" {
		t.Fatalf("unexpected account: %+v", account)
	}

	waitUnlocked(t, m)
	if _, err := os.Stat(filepath.Join(cfg.Paths.AuthDir, "alice.profile.toml")); err != nil {
		t.Fatalf("derived profile not persisted: %v", err)
	}
}

func TestCompleteWithoutPendingPhase(t *testing.T) {
	m, _, _ := newMachine(t, quickstartScript)

	if _, err := m.Complete(context.Background(), "https://example.com"); !errors.Is(err, authflow.ErrNotPending) {
		t.Fatalf("complete = %v, want ErrNotPending", err)
	}
}

func TestDuplicateAccountRollsBack(t *testing.T) {
	m, store, _ := newMachine(t, quickstartScript)
	ctx := context.Background()
	testsupport.SeedAccount(t, store, "alice")

	if _, err := m.Begin(ctx, "alice"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	_, err := m.Complete(ctx, "https://www.amazon.com/ap/signin?openid.result=ok")
	if err == nil {
		t.Fatal("duplicate registration succeeded")
	}
	if outcome.KindOf(err) != outcome.KindAlreadyExists {
		t.Fatalf("error kind = %v, want already_exists", outcome.KindOf(err))
	}
	waitUnlocked(t, m)
}

func TestToolExitDuringPhaseOneAborts(t *testing.T) {
	m, _, _ := newMachine(t, "#!/bin/sh\necho 'unexpected banner'\nexit 3\n")

	_, err := m.Begin(context.Background(), "alice")
	if !errors.Is(err, authflow.ErrAborted) {
		t.Fatalf("begin = %v, want ErrAborted", err)
	}
	waitUnlocked(t, m)

	// A fresh attempt starts clean after the abort.
	if m.Locked() {
		t.Fatal("lock held after abort")
	}
}

func TestPhaseOneWatchdogTimeout(t *testing.T) {
	m, _, cfg := newMachine(t, "#!/bin/sh\nsleep 30\n")
	cfg.Auth.Phase1TimeoutSeconds = 1

	start := time.Now()
	_, err := m.Begin(context.Background(), "alice")
	if err == nil {
		t.Fatal("begin succeeded with a silent tool")
	}
	if outcome.KindOf(err) != outcome.KindTimeout {
		t.Fatalf("error kind = %v, want timeout", outcome.KindOf(err))
	}
	if time.Since(start) > 10*time.Second {
		t.Fatal("watchdog fired too late")
	}
	waitUnlocked(t, m)
}

func TestCancelKillsDialogue(t *testing.T) {
	m, _, _ := newMachine(t, "#!/bin/sh\nsleep 30\n")

	done := make(chan error, 1)
	go func() {
		_, err := m.Begin(context.Background(), "alice")
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !m.Locked() {
		if time.Now().After(deadline) {
			t.Fatal("dialogue never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// The spawn may still be attaching; retry until the kill lands.
	for !m.Cancel() {
		if time.Now().After(deadline) {
			t.Fatal("cancel never found a live process")
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("canceled begin returned success")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("begin did not return after cancel")
	}
	waitUnlocked(t, m)
	if m.Cancel() {
		t.Fatal("cancel after teardown reported a live process")
	}
}

package authflow

import (
	"strings"
	"testing"

	"spool/internal/testsupport"
)

func newTestMachine(t *testing.T) (*Machine, *strings.Builder) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := New(cfg, store, nil, nil)

	var stdin strings.Builder
	m.locked = true
	m.accountName = "alice"
	m.authFile = "alice.json"
	m.stdin = &stdin
	m.pending = make(chan phaseResult, 1)
	return m, &stdin
}

func TestPromptSequenceYieldsURL(t *testing.T) {
	m, stdin := newTestMachine(t)

	chunks := []string{
		"Please enter a name for your primary profile [audible]: ",
		"Enter a country code for the profile: ",
		"Please enter a name for the auth file: ",
		"Do you want to encrypt the auth file? [y/N]: ",
		"Do you want to login with external browser? [Y/n]: ",
		"Do you want to login with a pre-Amazon Audible account? [y/N]: ",
		"Do you want to continue? [Y/n]: ",
		"Please copy the following url and insert it into a web browser:\n" +
			"https://www.amazon.com/ap/signin?openid.oa2=example\n",
	}
	pending := m.pending
	for _, chunk := range chunks {
		m.onChunk(chunk)
	}

	select {
	case result := <-pending:
		if result.err != nil {
			t.Fatalf("phase 1 failed: %v", result.err)
		}
		if result.value != "https://www.amazon.com/ap/signin?openid.oa2=example" {
			t.Fatalf("url = %q", result.value)
		}
	default:
		t.Fatal("prompt sequence did not resolve a url")
	}

	if m.state != StateAwaitResponse {
		t.Fatalf("state = %s, want AWAIT_RESPONSE", m.state)
	}
	wantResponses := []string{"alice", "us", "alice.json", "N", "y", "n", "y"}
	got := strings.Split(strings.TrimSuffix(stdin.String(), "\n"), "\n")
	if len(got) != len(wantResponses) {
		t.Fatalf("responses = %q, want %q", got, wantResponses)
	}
	for i := range wantResponses {
		if got[i] != wantResponses[i] {
			t.Fatalf("response %d = %q, want %q", i, got[i], wantResponses[i])
		}
	}
}

func TestPromptBeforeStdinAttachedIsReplayed(t *testing.T) {
	m, stdin := newTestMachine(t)
	m.stdin = nil
	pending := m.pending

	m.onChunk("Please enter a name for your primary profile [audible]: ")

	select {
	case result := <-pending:
		t.Fatalf("early prompt settled the phase: %+v", result)
	default:
	}
	if m.state != StateName {
		t.Fatalf("state = %s, want NAME", m.state)
	}
	if m.buffer.Len() == 0 {
		t.Fatal("early prompt was discarded")
	}

	m.mu.Lock()
	m.stdin = stdin
	m.advanceLocked()
	m.mu.Unlock()

	if m.state != StateCountry {
		t.Fatalf("state = %s, want COUNTRY after replay", m.state)
	}
	if got := stdin.String(); got != "alice\n" {
		t.Fatalf("responses = %q, want name reply", got)
	}
}

func TestOutOfOrderPromptProducesNoTransition(t *testing.T) {
	m, stdin := newTestMachine(t)

	m.onChunk("Do you want to continue? [Y/n]: ")
	m.onChunk("some unrelated banner text")

	if m.state != StateName {
		t.Fatalf("state = %s, want NAME", m.state)
	}
	if stdin.Len() != 0 {
		t.Fatalf("responses written for out-of-order prompt: %q", stdin.String())
	}
}

func TestPromptSplitAcrossChunksStillMatches(t *testing.T) {
	m, stdin := newTestMachine(t)

	m.onChunk("Please enter a name for ")
	if m.state != StateName || stdin.Len() != 0 {
		t.Fatal("partial prompt triggered a transition")
	}
	m.onChunk("your primary profile [audible]: ")
	if m.state != StateCountry {
		t.Fatalf("state = %s, want COUNTRY", m.state)
	}
}

func TestBufferClearedOnlyOnStateChange(t *testing.T) {
	m, _ := newTestMachine(t)

	m.onChunk("noise ")
	m.onChunk("more noise ")
	if m.buffer.Len() == 0 {
		t.Fatal("buffer cleared without a state change")
	}
	m.onChunk("Please enter a name for your primary profile: ")
	if m.buffer.Len() != 0 {
		t.Fatal("buffer not cleared after a state change")
	}
}

func TestMalformedURLIsHardFailure(t *testing.T) {
	m, _ := newTestMachine(t)
	m.state = StateAwaitURL
	pending := m.pending

	m.onChunk("Please copy the following url and insert it into a web browser:\nnot-a-real-url here\n")

	select {
	case result := <-pending:
		if result.err == nil {
			t.Fatal("malformed url resolved successfully")
		}
	default:
		t.Fatal("malformed url produced no failure")
	}
}

func TestURLWaitsForTerminator(t *testing.T) {
	m, _ := newTestMachine(t)
	m.state = StateAwaitURL
	pending := m.pending

	m.onChunk("Please copy the following url and insert it into a web browser:\nhttps://www.amazon.com/ap/sig")
	select {
	case <-pending:
		t.Fatal("resolved on a partially streamed url")
	default:
	}

	m.onChunk("nin?openid.oa2=example\n")
	select {
	case result := <-pending:
		if result.err != nil {
			t.Fatalf("resolve failed: %v", result.err)
		}
		if result.value != "https://www.amazon.com/ap/signin?openid.oa2=example" {
			t.Fatalf("url = %q", result.value)
		}
	default:
		t.Fatal("completed url did not resolve")
	}
}

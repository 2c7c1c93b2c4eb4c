package authflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"spool/internal/bus"
	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/outcome"
	"spool/internal/procrun"
	"spool/internal/queue"
)

var (
	// ErrBusy indicates another registration dialogue is already running.
	ErrBusy = errors.New("authorization dialogue already in progress")
	// ErrNotPending indicates Complete was called without a phase-1 URL
	// handoff in flight.
	ErrNotPending = errors.New("no authorization awaiting a response")
	// ErrInvalidURL indicates the tool produced a malformed login URL.
	ErrInvalidURL = errors.New("extracted login url is malformed")
	// ErrAborted indicates the tool exited before the dialogue finished.
	ErrAborted = errors.New("authorization tool exited prematurely")
)

var urlRE = regexp.MustCompile(`https?://\S+`)

type phaseResult struct {
	value string
	err   error
}

// Machine is the single registration dialogue instance. Only one
// dialogue may run system-wide at a time.
type Machine struct {
	cfg    *config.Config
	store  *queue.Store
	bus    *bus.Bus
	logger *slog.Logger

	mu          sync.Mutex
	locked      bool
	state       State
	buffer      strings.Builder
	stdin       io.Writer
	handle      *procrun.Handle
	pending     chan phaseResult
	watchdog    *time.Timer
	accountName string
	authFile    string
}

// New creates the dialogue machine.
func New(cfg *config.Config, store *queue.Store, eventBus *bus.Bus, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Machine{
		cfg:    cfg,
		store:  store,
		bus:    eventBus,
		logger: logger.With(logging.String(logging.FieldComponent, "authflow")),
		state:  StateName,
	}
}

// Locked reports whether a dialogue is currently in progress.
func (m *Machine) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Begin runs phase 1: it spawns the tool, walks the scripted prompts,
// and returns the login URL the user must visit. The subprocess stays
// alive awaiting Complete.
func (m *Machine) Begin(ctx context.Context, accountName string) (string, error) {
	accountName = strings.TrimSpace(accountName)
	if accountName == "" {
		return "", errors.New("account name is required")
	}

	m.mu.Lock()
	if m.locked {
		m.mu.Unlock()
		return "", ErrBusy
	}
	m.locked = true
	m.state = StateName
	m.buffer.Reset()
	m.accountName = accountName
	m.authFile = accountName + ".json"
	pending := make(chan phaseResult, 1)
	m.pending = pending
	m.mu.Unlock()

	// The tool must outlive the caller's request: phase 2 arrives on a
	// later call. Lifecycle is governed by the watchdog and Cancel.
	handle, err := procrun.Start(context.Background(), procrun.Spec{
		Binary:    m.cfg.Fetcher.Binary,
		Args:      []string{"quickstart"},
		Dir:       m.cfg.Paths.AuthDir,
		WantStdin: true,
		RawOutput: true,
		OnStdout:  m.onChunk,
		OnStderr:  m.onChunk,
	})
	if err != nil {
		m.mu.Lock()
		m.pending = nil
		m.locked = false
		m.mu.Unlock()
		return "", fmt.Errorf("start authorization tool: %w", err)
	}

	m.mu.Lock()
	m.handle = handle
	m.stdin = handle.Stdin()
	m.armWatchdog(time.Duration(m.cfg.Auth.Phase1TimeoutSeconds) * time.Second)
	// Output consumers start inside Start; a prompt that arrived before
	// the pipe was attached is sitting in the buffer, so replay it.
	m.advanceLocked()
	m.mu.Unlock()

	m.publishState()
	go m.watchExit(handle)

	return m.await(ctx, pending)
}

// Complete runs phase 2: it feeds the user's post-login URL back to the
// waiting tool and returns the registered account identifier.
func (m *Machine) Complete(ctx context.Context, responseURL string) (string, error) {
	responseURL = strings.TrimSpace(responseURL)
	if responseURL == "" {
		return "", errors.New("response url is required")
	}

	m.mu.Lock()
	if !m.locked || m.state != StateAwaitResponse || m.handle == nil {
		m.mu.Unlock()
		return "", ErrNotPending
	}
	pending := make(chan phaseResult, 1)
	m.pending = pending
	m.state = StateVerify
	m.buffer.Reset()
	stdin := m.stdin
	m.armWatchdog(time.Duration(m.cfg.Auth.Phase2TimeoutSeconds) * time.Second)
	m.mu.Unlock()

	m.publishState()
	if _, err := io.WriteString(stdin, responseURL+"\n"); err != nil {
		m.killProcess()
		return "", fmt.Errorf("write response url: %w", err)
	}

	return m.await(ctx, pending)
}

// Cancel kills a running dialogue. Returns false when none is running.
func (m *Machine) Cancel() bool {
	m.mu.Lock()
	handle := m.handle
	m.mu.Unlock()
	if handle == nil {
		return false
	}
	handle.Kill()
	return true
}

func (m *Machine) await(ctx context.Context, pending chan phaseResult) (string, error) {
	select {
	case result := <-pending:
		return result.value, result.err
	case <-ctx.Done():
		m.killProcess()
		return "", ctx.Err()
	}
}

// onChunk implements the transition rule: append, test the current
// state's prompt against the whole buffer, respond and advance on match.
// The buffer is cleared only when the state changes.
func (m *Machine) onChunk(chunk string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer.WriteString(chunk)
	m.advanceLocked()
}

// advanceLocked runs transitions until the buffer stops matching. Called
// with the mutex held.
func (m *Machine) advanceLocked() {
	for {
		switch m.state {
		case StateName, StateCountry, StateAuthFileName, StateAuthFileEncrypt,
			StateBrowserChoice, StatePreAccountChoice, StateConfirm:
			if !strings.Contains(m.buffer.String(), prompts[m.state]) {
				return
			}
			if m.stdin == nil {
				// Prompt landed before Begin attached the pipe; it stays
				// buffered until the replay after attachment.
				return
			}
			if err := m.respond(m.scriptedResponse(m.state)); err != nil {
				m.failLocked(fmt.Errorf("write response for %s: %w", m.state, err))
				return
			}
			m.logger.Debug("dialogue advanced", logging.String("state", m.state.String()))
			m.state++
			m.buffer.Reset()

		case StateAwaitURL:
			buffered := m.buffer.String()
			if !strings.Contains(buffered, prompts[StateAwaitURL]) {
				return
			}
			loc := urlRE.FindStringIndex(buffered)
			if loc == nil || loc[1] == len(buffered) {
				// Prompt seen but the URL is absent or still streaming in;
				// wait for the terminator after it.
				return
			}
			match := buffered[loc[0]:loc[1]]
			if !validLoginURL(match) {
				m.failLocked(fmt.Errorf("%w: %q", ErrInvalidURL, match))
				return
			}
			m.stopWatchdog()
			m.state = StateAwaitResponse
			m.buffer.Reset()
			m.resolveLocked(match)
			return

		case StateVerify:
			buffered := m.buffer.String()
			switch {
			case strings.Contains(buffered, successMarker):
				m.verifyLocked()
				return
			case strings.Contains(buffered, tracebackMarker), strings.Contains(buffered, exceptionMarker):
				m.failLocked(outcome.Wrap(outcome.KindUnknownState, "auth", "verify", "tool reported an exception", nil))
				return
			default:
				return
			}

		default:
			return
		}
	}
}

func (m *Machine) scriptedResponse(state State) string {
	switch state {
	case StateName:
		return m.accountName
	case StateCountry:
		return m.cfg.Auth.Country
	case StateAuthFileName:
		return m.authFile
	case StateAuthFileEncrypt:
		if m.cfg.Auth.EncryptAuthFile {
			return "y"
		}
		return "N"
	case StateBrowserChoice:
		return "y"
	case StatePreAccountChoice:
		return "n"
	case StateConfirm:
		return "y"
	default:
		return ""
	}
}

func (m *Machine) respond(line string) error {
	if m.stdin == nil {
		return errors.New("stdin not attached")
	}
	_, err := io.WriteString(m.stdin, line+"\n")
	return err
}

// verifyLocked finishes phase 2: idempotency check, then credential
// creation. Called with the mutex held.
func (m *Machine) verifyLocked() {
	ctx := context.Background()
	existing, err := m.store.GetAccount(ctx, m.accountName)
	if err != nil {
		m.failLocked(fmt.Errorf("account lookup: %w", err))
		return
	}
	if existing != nil {
		// Roll the whole registration back; the caller gets a distinct
		// error rather than a silently merged account.
		m.failLocked(outcome.Wrap(outcome.KindAlreadyExists, "auth", "verify", m.accountName, nil))
		if m.handle != nil {
			m.handle.Kill()
		}
		return
	}
	if err := m.store.CreateAccount(ctx, &queue.Account{
		ID:                m.accountName,
		Country:           m.cfg.Auth.Country,
		AuthFile:          m.authFile,
		CredentialPresent: true,
	}); err != nil {
		m.failLocked(fmt.Errorf("create account: %w", err))
		return
	}
	m.stopWatchdog()
	m.resolveLocked(m.accountName)
}

func (m *Machine) resolveLocked(value string) {
	if m.pending != nil {
		m.pending <- phaseResult{value: value}
		m.pending = nil
	}
}

func (m *Machine) failLocked(err error) {
	if m.pending != nil {
		m.pending <- phaseResult{err: err}
		m.pending = nil
	}
	if m.handle != nil {
		m.handle.Kill()
	}
}

func (m *Machine) armWatchdog(timeout time.Duration) {
	m.stopWatchdog()
	if timeout <= 0 {
		return
	}
	m.watchdog = time.AfterFunc(timeout, func() {
		m.mu.Lock()
		m.failLocked(outcome.Wrap(outcome.KindTimeout, "auth", m.state.String(), "dialogue watchdog expired", nil))
		m.mu.Unlock()
	})
}

func (m *Machine) stopWatchdog() {
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
}

func (m *Machine) killProcess() {
	m.mu.Lock()
	handle := m.handle
	m.mu.Unlock()
	if handle != nil {
		handle.Kill()
	}
}

// watchExit performs the unconditional teardown: persist derived
// configuration, release the lock, and reset to the initial state. It
// runs on every exit path, whether or not a phase call already settled.
func (m *Machine) watchExit(handle *procrun.Handle) {
	_ = handle.Wait()

	m.mu.Lock()
	if m.pending != nil {
		m.pending <- phaseResult{err: ErrAborted}
		m.pending = nil
	}
	m.stopWatchdog()
	name := m.accountName
	m.handle = nil
	m.stdin = nil
	m.locked = false
	m.state = StateName
	m.buffer.Reset()
	m.mu.Unlock()

	if err := m.persistProfile(name); err != nil {
		m.logger.Warn("profile persistence failed", logging.Error(err))
	}
	m.publishState()
}

func (m *Machine) publishState() {
	if m.bus == nil {
		return
	}
	m.mu.Lock()
	state := m.state.String()
	locked := m.locked
	m.mu.Unlock()
	m.bus.Publish(bus.ChannelAuth, bus.NewCorrelationID(), bus.EventAuthState, map[string]any{
		"state":  state,
		"locked": locked,
	})
}

func validLoginURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

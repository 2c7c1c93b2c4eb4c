package procrun

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"
)

// Spec describes one subprocess invocation.
type Spec struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string

	// OnStdout and OnStderr receive output as it arrives. Nil consumers
	// discard the stream.
	OnStdout func(string)
	OnStderr func(string)

	// RawOutput forwards buffered chunks instead of split lines.
	// Interactive prompts do not end in newlines, so line splitting
	// would withhold them until process exit.
	RawOutput bool

	// WantStdin requests a pipe to the process's stdin on the handle.
	WantStdin bool
}

// Handle is a started subprocess.
type Handle struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	waitOnce sync.Once
	waitErr  error
	scanners sync.WaitGroup
	done     chan struct{}
}

// Start launches the subprocess in its own process group and begins
// consuming its output streams.
func Start(ctx context.Context, spec Spec) (*Handle, error) {
	if spec.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...) //nolint:gosec
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	// Own process group so cancellation reaches the tool's children too.
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}

	h := &Handle{cmd: cmd, done: make(chan struct{})}

	if spec.WantStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		h.stdin = stdin
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Binary, err)
	}

	h.scanners.Add(2)
	if spec.RawOutput {
		go h.consumeRaw(stdout, spec.OnStdout)
		go h.consumeRaw(stderr, spec.OnStderr)
	} else {
		go h.consume(stdout, spec.OnStdout)
		go h.consume(stderr, spec.OnStderr)
	}

	go func() {
		h.scanners.Wait()
		h.waitOnce.Do(func() { h.waitErr = cmd.Wait() })
		close(h.done)
	}()

	return h, nil
}

func (h *Handle) consume(r io.Reader, forward func(string)) {
	defer h.scanners.Done()
	scanner := bufio.NewScanner(r)
	scanner.Split(SplitLines)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if forward != nil {
			forward(scanner.Text())
		}
	}
}

func (h *Handle) consumeRaw(r io.Reader, forward func(string)) {
	defer h.scanners.Done()
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && forward != nil {
			forward(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Stdin returns the process's stdin pipe, or nil when not requested.
func (h *Handle) Stdin() io.WriteCloser { return h.stdin }

// WriteLine writes one line to the process's stdin.
func (h *Handle) WriteLine(line string) error {
	if h.stdin == nil {
		return fmt.Errorf("stdin not attached")
	}
	_, err := io.WriteString(h.stdin, line+"\n")
	return err
}

// Done is closed when the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until exit and returns the process error, if any.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// WaitContext waits for exit or context cancellation, killing the
// process group on cancellation.
func (h *Handle) WaitContext(ctx context.Context) error {
	select {
	case <-h.done:
		return h.waitErr
	case <-ctx.Done():
		h.Kill()
		<-h.done
		return ctx.Err()
	}
}

// Kill terminates the whole process group. Safe to call more than once
// and after exit.
func (h *Handle) Kill() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	pid := h.cmd.Process.Pid
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		_ = h.cmd.Process.Kill()
	}
}

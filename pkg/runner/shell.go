package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	apperrors "runonsave/pkg/errors"
	"runonsave/pkg/logger"
	"strings"
	"sync"
	"syscall"
)

const readChunkSize = 4096

// ShellSpawner runs commands through a shell using os/exec
type ShellSpawner struct {
	logger *logger.Logger
}

// NewShellSpawner creates a new ShellSpawner. A nil logger discards output.
func NewShellSpawner(log *logger.Logger) *ShellSpawner {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &ShellSpawner{logger: log}
}

// Spawn starts `<shell> -c command` and streams its output to h
func (s *ShellSpawner) Spawn(command string, opts ExecOptions, h Handlers) Process {
	h = h.withDefaults()

	shell := opts.Shell
	if shell == "" {
		shell = DefaultShell
	}

	p := &shellProcess{}
	if strings.TrimSpace(command) == "" {
		go p.fail(h, apperrors.ErrEmptyCommand)
		return p
	}

	cmd := exec.Command(shell, "-c", command)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	p.cmd = cmd

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		go p.fail(h, fmt.Errorf("failed to create stdout pipe: %w", err))
		return p
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		go p.fail(h, fmt.Errorf("failed to create stderr pipe: %w", err))
		return p
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		go p.fail(h, fmt.Errorf("failed to start %s: %w", shell, err))
		return p
	}
	p.pid = cmd.Process.Pid

	s.logger.WithFields(logger.Fields{
		"shell":   shell,
		"dir":     opts.Dir,
		"command": command,
		"pid":     p.pid,
	}).Debug("Spawned command")

	go p.wait(h, stdout, stderr)
	return p
}

type shellProcess struct {
	cmd *exec.Cmd
	pid int
}

func (p *shellProcess) PID() int {
	return p.pid
}

// Kill sends SIGTERM, falling back to a hard kill where signals are not
// supported.
func (p *shellProcess) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}

func (p *shellProcess) fail(h Handlers, err error) {
	h.Error(err)
	h.Exit(-1)
}

func (p *shellProcess) wait(h Handlers, stdout, stderr io.ReadCloser) {
	// Both pipes have to be drained before Wait closes them
	var wg sync.WaitGroup
	wg.Add(2)
	go pump(&wg, stdout, h.Stdout)
	go pump(&wg, stderr, h.Stderr)
	wg.Wait()

	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		h.Error(err)
	}
	h.Exit(exitCode(err, p.cmd.ProcessState))
}

func pump(wg *sync.WaitGroup, r io.Reader, fn func([]byte)) {
	defer wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			fn(chunk)
		}
		if err != nil {
			return
		}
	}
}

func exitCode(waitErr error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ProcessState != nil {
		return exitErr.ProcessState.ExitCode()
	}
	return -1
}

// Package runner is the process execution facility: it starts a shell
// command and reports its output and completion through callbacks.
package runner

// DefaultShell is used when ExecOptions.Shell is empty
const DefaultShell = "bash"

// ExecOptions controls how a command is launched
type ExecOptions struct {
	// Shell is the interpreter invoked as `<shell> -c <command>`
	Shell string
	// Dir is the working directory; empty inherits the caller's
	Dir string
	// Env is appended to the inherited environment
	Env []string
}

// Handlers receive the events of a spawned process. Any of them may be nil.
//
// Stdout and Stderr are called with chunks as the pipes deliver them, with
// no line reassembly. Error is called when the process could not be
// started or could not be waited on. Exit is always called exactly once,
// last, with -1 when no exit status is available.
type Handlers struct {
	Stdout func(p []byte)
	Stderr func(p []byte)
	Error  func(err error)
	Exit   func(code int)
}

func (h Handlers) withDefaults() Handlers {
	if h.Stdout == nil {
		h.Stdout = func([]byte) {}
	}
	if h.Stderr == nil {
		h.Stderr = func([]byte) {}
	}
	if h.Error == nil {
		h.Error = func(error) {}
	}
	if h.Exit == nil {
		h.Exit = func(int) {}
	}
	return h
}

// Process is a handle to a spawned command
type Process interface {
	// PID is 0 when the process never started
	PID() int
	// Kill asks the process to terminate and returns without waiting
	Kill() error
}

// Spawner launches shell commands.
//
// Spawn never fails synchronously: launch failures are delivered through
// Handlers.Error followed by Handlers.Exit. Implementations must not invoke
// any handler from within Spawn itself, so callers may hold a lock across
// Spawn that their handlers also acquire.
type Spawner interface {
	Spawn(command string, opts ExecOptions, h Handlers) Process
}

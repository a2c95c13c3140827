// Package testutil provides testing utilities for runonsave
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runonsave/pkg/runner"
	"sync"
	"testing"
	"time"
)

// SpawnedCommand is one call to FakeSpawner.Spawn
type SpawnedCommand struct {
	Command string
	Options runner.ExecOptions
	Process *FakeProcess
}

// FakeSpawner implements runner.Spawner without starting processes. Tests
// drive output and completion through the returned FakeProcess values.
type FakeSpawner struct {
	mu      sync.Mutex
	nextPID int
	spawned []SpawnedCommand
	events  []string
	// FailLaunch makes every spawned process a launch failure with PID 0
	FailLaunch bool
}

func NewFakeSpawner() *FakeSpawner {
	return &FakeSpawner{nextPID: 1000}
}

func (f *FakeSpawner) Spawn(command string, opts runner.ExecOptions, h runner.Handlers) runner.Process {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := &FakeProcess{spawner: f, handlers: h}
	if !f.FailLaunch {
		f.nextPID++
		p.pid = f.nextPID
	}
	f.spawned = append(f.spawned, SpawnedCommand{Command: command, Options: opts, Process: p})
	f.events = append(f.events, fmt.Sprintf("spawn:%d", p.pid))
	return p
}

// Spawned returns every spawn so far
func (f *FakeSpawner) Spawned() []SpawnedCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SpawnedCommand, len(f.spawned))
	copy(out, f.spawned)
	return out
}

// Last returns the most recent spawn
func (f *FakeSpawner) Last() *FakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.spawned) == 0 {
		return nil
	}
	return f.spawned[len(f.spawned)-1].Process
}

// Events returns the spawn and kill calls in the order they happened, as
// "spawn:<pid>" and "kill:<pid>"
func (f *FakeSpawner) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func (f *FakeSpawner) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

// FakeProcess is a process handle whose lifecycle is driven by the test
type FakeProcess struct {
	spawner  *FakeSpawner
	handlers runner.Handlers
	pid      int

	mu     sync.Mutex
	kills  int
	exited bool
}

func (p *FakeProcess) PID() int {
	return p.pid
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.spawner.record(fmt.Sprintf("kill:%d", p.pid))
	return nil
}

// Kills reports how many times Kill was called
func (p *FakeProcess) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

func (p *FakeProcess) Stdout(s string) {
	if p.handlers.Stdout != nil {
		p.handlers.Stdout([]byte(s))
	}
}

func (p *FakeProcess) Stderr(s string) {
	if p.handlers.Stderr != nil {
		p.handlers.Stderr([]byte(s))
	}
}

func (p *FakeProcess) Fail(err error) {
	if p.handlers.Error != nil {
		p.handlers.Error(err)
	}
}

// Exit delivers the exit event once; later calls are ignored
func (p *FakeProcess) Exit(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.mu.Unlock()

	if p.handlers.Exit != nil {
		p.handlers.Exit(code)
	}
}

// CreateTestFile creates a test file with the given content
func CreateTestFile(t *testing.T, dir, filename, content string) string {
	t.Helper()

	filePath := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", filePath, err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test file %s: %v", filePath, err)
	}

	return filePath
}

// WithTimeout creates a context with timeout for tests
func WithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), timeout)
}

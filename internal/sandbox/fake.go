package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/2029ijones-sudo/os-lab/internal/core"
)

// Fake is an in-process Provider for tests and sandbox-less local runs.
// Failure injection and boot latency are configurable; every Env records
// what was mounted, written, and executed.
type Fake struct {
	mu sync.Mutex

	BootErr       error
	MountErr      error
	SpawnErr      error
	BootDelay     time.Duration
	InstallExit   int
	InstallOutput string

	boots int
	envs  []*FakeEnv
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Boot(ctx context.Context) (Env, error) {
	f.mu.Lock()
	delay := f.BootDelay
	bootErr := f.BootErr
	f.boots++
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if bootErr != nil {
		return nil, bootErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	env := &FakeEnv{
		files:         core.FileTree{},
		events:        make(chan ServerEvent, 8),
		mountErr:      f.MountErr,
		spawnErr:      f.SpawnErr,
		installExit:   f.InstallExit,
		installOutput: f.InstallOutput,
	}
	f.envs = append(f.envs, env)
	return env, nil
}

// Boots reports how many environments were provisioned.
func (f *Fake) Boots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.boots
}

// LastEnv returns the most recently booted environment.
func (f *Fake) LastEnv() *FakeEnv {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.envs) == 0 {
		return nil
	}
	return f.envs[len(f.envs)-1]
}

type FakeEnv struct {
	mu            sync.Mutex
	files         core.FileTree
	writes        []string
	commands      [][]string
	events        chan ServerEvent
	torn          bool
	mountErr      error
	spawnErr      error
	installExit   int
	installOutput string
	shell         *fakeShell
}

func (e *FakeEnv) Mount(ctx context.Context, tree core.FileTree) error {
	if e.mountErr != nil {
		return e.mountErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for p, c := range tree {
		e.files[p] = c
	}
	return nil
}

func (e *FakeEnv) WriteFile(ctx context.Context, path string, content []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.torn {
		return fmt.Errorf("environment torn down")
	}
	e.files[path] = string(content)
	e.writes = append(e.writes, path)
	return nil
}

func (e *FakeEnv) ReadFile(ctx context.Context, path string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return []byte(c), nil
}

func (e *FakeEnv) SpawnShell(ctx context.Context, cols, rows uint16) (Shell, error) {
	if e.spawnErr != nil {
		return nil, e.spawnErr
	}
	pr, pw := io.Pipe()
	sh := &fakeShell{outR: pr, outW: pw}
	e.mu.Lock()
	e.shell = sh
	e.mu.Unlock()
	return sh, nil
}

func (e *FakeEnv) Start(ctx context.Context, argv []string) (Proc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commands = append(e.commands, argv)
	return &fakeProc{out: strings.NewReader(e.installOutput), exit: e.installExit}, nil
}

func (e *FakeEnv) ServerEvents() <-chan ServerEvent {
	return e.events
}

func (e *FakeEnv) Teardown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.torn {
		return nil
	}
	e.torn = true
	close(e.events)
	if e.shell != nil {
		_ = e.shell.Close()
	}
	return nil
}

// EmitServerReady simulates the sandbox reporting a listening port.
func (e *FakeEnv) EmitServerReady(port int, url string) {
	e.events <- ServerEvent{Port: port, URL: url, Up: true}
}

// EmitServerGone simulates the listening port closing.
func (e *FakeEnv) EmitServerGone(port int) {
	e.events <- ServerEvent{Port: port, Up: false}
}

// ShellPrint pushes output onto the shell channel, as a running program
// would. Blocks until a consumer reads it.
func (e *FakeEnv) ShellPrint(s string) {
	e.mu.Lock()
	sh := e.shell
	e.mu.Unlock()
	if sh != nil {
		_, _ = sh.outW.Write([]byte(s))
	}
}

// ShellInput returns everything written to the shell's stdin.
func (e *FakeEnv) ShellInput() string {
	e.mu.Lock()
	sh := e.shell
	e.mu.Unlock()
	if sh == nil {
		return ""
	}
	return sh.Input()
}

// Files returns a copy of the environment's file contents.
func (e *FakeEnv) Files() core.FileTree {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.files.Clone()
}

// Writes returns the paths written after mount, in application order.
func (e *FakeEnv) Writes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.writes...)
}

// Commands returns every argv passed to Start.
func (e *FakeEnv) Commands() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.commands))
	for i, c := range e.commands {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// TornDown reports whether Teardown ran.
func (e *FakeEnv) TornDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.torn
}

type fakeShell struct {
	mu   sync.Mutex
	in   bytes.Buffer
	outR *io.PipeReader
	outW *io.PipeWriter
}

func (s *fakeShell) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.Write(p)
}

func (s *fakeShell) Output() io.Reader { return s.outR }

func (s *fakeShell) Resize(cols, rows uint16) error { return nil }

func (s *fakeShell) Close() error {
	return s.outW.Close()
}

// Input returns everything written to the shell's stdin.
func (s *fakeShell) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in.String()
}

type fakeProc struct {
	out  io.Reader
	exit int
}

func (p *fakeProc) Output() io.Reader { return p.out }

func (p *fakeProc) Wait(ctx context.Context) (int, error) {
	return p.exit, nil
}

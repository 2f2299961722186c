package sbt

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// buildDescriptor marks a directory as an sbt project.
const buildDescriptor = "build.sbt"

const resyncTimeout = 5 * time.Second

type state string

const (
	stateNotStarted state = "not_started"
	stateStarting   state = "starting"
	stateReady      state = "ready"
	stateExecuting  state = "executing"
	stateClosed     state = "closed"
	stateFailed     state = "failed"
)

// Options configures a Session.
type Options struct {
	// StartupTimeout bounds the wait for the first ready prompt. sbt cold
	// starts can take minutes while it resolves the build.
	StartupTimeout time.Duration

	// ErrorMarkers are the substrings scanned for, case-insensitively, to
	// classify command output as a failure. sbt exposes no exit code over
	// the terminal, so this heuristic is the only status signal. It can
	// false-positive (output merely mentioning a marker) and
	// false-negative (failures that print no marker).
	ErrorMarkers []string
}

func DefaultOptions() Options {
	return Options{
		StartupTimeout: 2 * time.Minute,
		ErrorMarkers:   []string{"[error]"},
	}
}

// Session owns one sbt process for one project root and executes commands
// against it one at a time. A session that has failed or been closed is
// never revived; callers construct a replacement.
type Session struct {
	root string
	opts Options

	mu          sync.Mutex
	state       state
	channel     channel
	needsResync bool

	// startChannel spawns the sbt child process; overridden in tests
	startChannel func(dir string) (channel, error)
}

func NewSession(root string, opts Options) *Session {
	if opts.StartupTimeout == 0 {
		opts.StartupTimeout = DefaultOptions().StartupTimeout
	}
	if len(opts.ErrorMarkers) == 0 {
		opts.ErrorMarkers = DefaultOptions().ErrorMarkers
	}
	return &Session{
		root:  root,
		opts:  opts,
		state: stateNotStarted,
		startChannel: func(dir string) (channel, error) {
			return startPTYChannel(dir, []string{"sbt", "-no-colors"})
		},
	}
}

// Root returns the project root the session runs in.
func (s *Session) Root() string { return s.root }

// Running reports whether the session can accept commands.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady || s.state == stateExecuting
}

// Start spawns sbt and blocks until its first ready prompt. The root must
// exist and contain build.sbt; otherwise a ConfigError is returned before
// anything is spawned.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateNotStarted {
		return fmt.Errorf("sbt session already started (state %s)", s.state)
	}

	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		return &ConfigError{Root: s.root, Reason: "directory does not exist"}
	}
	if _, err := os.Stat(filepath.Join(s.root, buildDescriptor)); err != nil {
		return &ConfigError{Root: s.root, Reason: "no " + buildDescriptor + " found, not a valid sbt project"}
	}

	s.state = stateStarting
	ch, err := s.startChannel(s.root)
	if err != nil {
		s.state = stateFailed
		return &StartupError{Cause: err}
	}
	s.channel = ch

	slog.Info("waiting for sbt prompt", "root", s.root)
	// The bare "> " fallback is honored only here: minor prompt drift must
	// not hang the handshake, and no command output is in flight yet that
	// it could false-positive on.
	startupPatterns := []*regexp.Regexp{PromptPattern, BarePromptPattern}
	_, captured, err := ch.ReadUntil(startupPatterns, s.opts.StartupTimeout)
	if err != nil {
		s.state = stateFailed
		ch.Terminate(false)
		return &StartupError{Output: captured, Cause: err}
	}

	slog.Info("sbt session ready", "root", s.root)
	s.state = stateReady
	return nil
}

// Execute sends one command line to sbt and blocks until the next ready
// prompt or the timeout. It returns the command's output with the echo
// line stripped and surrounding whitespace trimmed, plus a status code
// inferred from the error markers: 0 clean, 1 marker found.
//
// A timeout leaves the session usable and returns a *TimeoutError; the
// leftover output of the abandoned command is drained before the next
// one runs. Stream end fails the session and returns a *TerminatedError.
func (s *Session) Execute(command string, timeout time.Duration) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateReady {
		return "", 0, fmt.Errorf("%w (state %s)", ErrNotRunning, s.state)
	}
	s.state = stateExecuting

	if s.needsResync {
		s.drain()
	}

	if err := s.channel.Send(command); err != nil {
		s.state = stateFailed
		s.channel.Terminate(false)
		return "", 0, &TerminatedError{}
	}

	_, raw, err := s.channel.ReadUntil([]*regexp.Regexp{PromptPattern}, timeout)
	switch {
	case errors.Is(err, ErrReadTimeout):
		s.needsResync = true
		s.state = stateReady
		return "", 0, &TimeoutError{Command: command, Timeout: timeout}
	case errors.Is(err, ErrStreamEnded):
		s.state = stateFailed
		s.channel.Terminate(false)
		return "", 0, &TerminatedError{Output: raw}
	}

	output, code := s.interpret(command, raw)
	s.state = stateReady
	return output, code, nil
}

// drain discards everything up to the next prompt. A previously timed-out
// command may still be producing output; without this it would be
// attributed to the next command. Best effort: if no prompt shows up
// within the bound, the flag stays set and the next Execute tries again.
func (s *Session) drain() {
	_, discarded, err := s.channel.ReadUntil([]*regexp.Regexp{PromptPattern}, resyncTimeout)
	if err != nil {
		slog.Debug("resync drain found no prompt", "root", s.root, "err", err)
		return
	}
	if discarded != "" {
		slog.Debug("discarded stale output", "root", s.root, "bytes", len(discarded))
	}
	s.needsResync = false
}

func (s *Session) interpret(command, raw string) (string, int) {
	raw = strings.ReplaceAll(raw, "\r", "")
	lines := strings.Split(raw, "\n")

	// Interactive terminals echo the typed line back before any real
	// output; drop it.
	if len(lines) > 0 && strings.Contains(lines[0], command) {
		lines = lines[1:]
	}
	output := strings.TrimSpace(strings.Join(lines, "\n"))

	lowered := strings.ToLower(output)
	for _, marker := range s.opts.ErrorMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return output, 1
		}
	}
	return output, 0
}

// Close shuts the session down, attempting a graceful exit before forcing
// termination. Calling Close on an already-closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		return nil
	}
	if s.channel != nil {
		s.channel.Terminate(true)
	}
	s.state = stateClosed
	return nil
}

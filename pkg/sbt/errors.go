package sbt

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrReadTimeout is returned by a channel read that found no prompt
	// before its deadline.
	ErrReadTimeout = errors.New("timed out waiting for prompt")

	// ErrStreamEnded is returned by a channel read when the child process
	// closed its output stream.
	ErrStreamEnded = errors.New("output stream ended")

	// ErrNotRunning is returned by Execute on a session that is closed,
	// failed, or was never started. Callers recover by constructing a new
	// session.
	ErrNotRunning = errors.New("sbt session is not running")
)

// ConfigError reports a working root that cannot host an sbt session.
// No process is spawned when this is returned.
type ConfigError struct {
	Root   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid sbt project root %s: %s", e.Root, e.Reason)
}

// StartupError reports a failed handshake. Output holds everything the
// process wrote before the failure; it is the primary diagnostic signal
// and is preserved verbatim. The session that produced it must be
// replaced, not retried.
type StartupError struct {
	Output string
	Cause  error
}

func (e *StartupError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("sbt failed to start: %v\nOutput:\n%s", e.Cause, e.Output)
	}
	return fmt.Sprintf("sbt failed to start: %v", e.Cause)
}

func (e *StartupError) Unwrap() error { return e.Cause }

// TimeoutError reports a single command exceeding its deadline. The
// session remains usable; the underlying command is not killed, only the
// wait is abandoned.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s: %s", e.Timeout, e.Command)
}

// TerminatedError reports the sbt process exiting mid-command. The
// session is unusable afterwards.
type TerminatedError struct {
	Output string
}

func (e *TerminatedError) Error() string {
	return "sbt process terminated unexpectedly"
}

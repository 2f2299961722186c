package sbt

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReply struct {
	idx  int
	text string
	err  error
}

// fakeChannel scripts ReadUntil outcomes and records everything sent.
type fakeChannel struct {
	replies    []fakeReply
	sent       []string
	sendErr    error
	terminated int
	graceful   []bool
}

func (f *fakeChannel) Send(line string) error {
	f.sent = append(f.sent, line)
	return f.sendErr
}

func (f *fakeChannel) ReadUntil(patterns []*regexp.Regexp, timeout time.Duration) (int, string, error) {
	if len(f.replies) == 0 {
		return -1, "", ErrReadTimeout
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.idx, r.text, r.err
}

func (f *fakeChannel) Terminate(graceful bool) error {
	f.terminated++
	f.graceful = append(f.graceful, graceful)
	return nil
}

// projectDir creates a valid sbt project root.
func projectDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.sbt"), []byte(`name := "scala3"`), 0o644))
	return dir
}

// startedSession returns a ready session backed by the given fake,
// counting spawns into the returned counter.
func startedSession(t *testing.T, fake *fakeChannel) (*Session, *int) {
	t.Helper()
	spawns := 0
	s := NewSession(projectDir(t), DefaultOptions())
	s.startChannel = func(dir string) (channel, error) {
		spawns++
		return fake, nil
	}
	require.NoError(t, s.Start())
	return s, &spawns
}

func TestStartMissingRoot(t *testing.T) {
	spawns := 0
	s := NewSession("/does/not/exist", DefaultOptions())
	s.startChannel = func(dir string) (channel, error) {
		spawns++
		return &fakeChannel{}, nil
	}

	err := s.Start()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "/does/not/exist", cfgErr.Root)
	assert.Equal(t, 0, spawns, "no process may be spawned on a bad root")
}

func TestStartMissingBuildDescriptor(t *testing.T) {
	dir := t.TempDir() // exists, but no build.sbt
	spawns := 0
	s := NewSession(dir, DefaultOptions())
	s.startChannel = func(string) (channel, error) {
		spawns++
		return &fakeChannel{}, nil
	}

	err := s.Start()
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), dir)
	assert.Contains(t, cfgErr.Reason, "build.sbt")
	assert.Equal(t, 0, spawns)
}

func TestStartHandshakeTimeout(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{
		{idx: -1, text: "[info] loading settings", err: ErrReadTimeout},
	}}
	s := NewSession(projectDir(t), DefaultOptions())
	s.startChannel = func(string) (channel, error) { return fake, nil }

	err := s.Start()
	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Equal(t, "[info] loading settings", startupErr.Output, "partial output must be preserved verbatim")
	assert.False(t, s.Running())
	assert.Equal(t, 1, fake.terminated)

	// The failed session is never reused.
	_, _, execErr := s.Execute("scalac Foo.scala", time.Second)
	assert.ErrorIs(t, execErr, ErrNotRunning)
}

func TestStartHandshakeStreamEnd(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{
		{idx: -1, text: "java.lang.OutOfMemoryError", err: ErrStreamEnded},
	}}
	s := NewSession(projectDir(t), DefaultOptions())
	s.startChannel = func(string) (channel, error) { return fake, nil }

	err := s.Start()
	var startupErr *StartupError
	require.ErrorAs(t, err, &startupErr)
	assert.Contains(t, startupErr.Error(), "java.lang.OutOfMemoryError")
	assert.False(t, s.Running())
}

func TestExecuteStripsEcho(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{
		{idx: 0, text: "[info] welcome\n"}, // handshake
		{idx: 0, text: "scalac Foo.scala -color:never\r\nSuccessfully compiled Foo.scala\r\n"},
	}}
	s, _ := startedSession(t, fake)

	output, code, err := s.Execute("scalac Foo.scala -color:never", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "Successfully compiled Foo.scala", output)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"scalac Foo.scala -color:never"}, fake.sent)
}

func TestExecuteClassification(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCode int
	}{
		{"uppercase marker", "[ERROR] bad\n", 1},
		{"lowercase marker", "[error] bad\n", 1},
		{"clean output", "ok, done\n", 0},
		{"empty output", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeChannel{replies: []fakeReply{
				{idx: 0, text: ""},
				{idx: 0, text: tt.raw},
			}}
			s, _ := startedSession(t, fake)

			_, code, err := s.Execute("testCompilation", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestExecuteCustomMarkers(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{
		{idx: 0, text: ""},
		{idx: 0, text: "FAILED: something broke\n"},
	}}
	opts := DefaultOptions()
	opts.ErrorMarkers = []string{"failed:"}

	s := NewSession(projectDir(t), opts)
	s.startChannel = func(string) (channel, error) { return fake, nil }
	require.NoError(t, s.Start())

	_, code, err := s.Execute("compile", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, code)
}

func TestExecuteTimeoutKeepsSessionUsable(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{
		{idx: 0, text: ""}, // handshake
		{idx: -1, text: "partial", err: ErrReadTimeout},
		// resync drain, then the next command
		{idx: 0, text: "leftover from the slow command\n"},
		{idx: 0, text: "testCompilation\nall tests passed\n"},
	}}
	s, _ := startedSession(t, fake)

	_, _, err := s.Execute("runSlowThing", 10*time.Millisecond)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "runSlowThing", timeoutErr.Command)
	assert.True(t, s.Running(), "a single slow command must not poison the session")

	output, code, err := s.Execute("testCompilation", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "all tests passed", output, "stale output must not leak into the next command")
	assert.Equal(t, 0, code)
}

func TestExecuteStreamEndFailsSession(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{
		{idx: 0, text: ""},
		{idx: -1, text: "boom", err: ErrStreamEnded},
	}}
	s, _ := startedSession(t, fake)

	_, _, err := s.Execute("compile", time.Minute)
	var termErr *TerminatedError
	require.ErrorAs(t, err, &termErr)
	assert.False(t, s.Running())

	_, _, err = s.Execute("compile", time.Minute)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestCloseIsIdempotent(t *testing.T) {
	fake := &fakeChannel{replies: []fakeReply{{idx: 0, text: ""}}}
	s, _ := startedSession(t, fake)

	require.NoError(t, s.Close())
	assert.Equal(t, []bool{true}, fake.graceful, "close attempts the graceful path first")

	require.NoError(t, s.Close())
	assert.Equal(t, 1, fake.terminated, "second close must be a no-op")

	_, _, err := s.Execute("compile", time.Minute)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestCloseNeverStarted(t *testing.T) {
	s := NewSession(projectDir(t), DefaultOptions())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

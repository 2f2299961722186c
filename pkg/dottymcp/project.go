// Package dottymcp exposes the Dotty (Scala 3) development workflow as MCP
// tools backed by a persistent sbt session per project root.
package dottymcp

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/semistrict/dotty-mcp/pkg/sbt"
)

// commandTimeout bounds a single sbt command. Distinct from the session's
// startup timeout; testCompilation runs can legitimately take minutes.
const commandTimeout = 5 * time.Minute

// compilerSession is what Project needs from an sbt session; tests
// substitute fakes with spawn counters.
type compilerSession interface {
	Start() error
	Execute(command string, timeout time.Duration) (string, int, error)
	Close() error
	Running() bool
}

// Project owns at most one live sbt session for one working root,
// constructing it lazily and replacing it after failure, closure, or a
// build.sbt change.
type Project struct {
	Root string

	mu      sync.Mutex
	session compilerSession
	stale   bool
	watcher *fsnotify.Watcher

	// newSession constructs an unstarted session; overridden in tests
	newSession func(root string) compilerSession
}

func newProject(root string) *Project {
	return &Project{
		Root: root,
		newSession: func(root string) compilerSession {
			return sbt.NewSession(root, sbt.DefaultOptions())
		},
	}
}

// EnsureReady returns a session that is accepting commands, reusing the
// existing one when it is still healthy and the build has not changed.
func (p *Project) EnsureReady() (compilerSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensureReadyLocked()
}

func (p *Project) ensureReadyLocked() (compilerSession, error) {
	if p.session != nil && p.session.Running() && !p.stale {
		return p.session, nil
	}

	if p.session != nil {
		p.session.Close()
		p.session = nil
	}

	session := p.newSession(p.Root)
	if err := session.Start(); err != nil {
		return nil, err
	}

	p.session = session
	p.stale = false
	p.ensureWatcherLocked()
	return session, nil
}

// ensureWatcherLocked starts watching build.sbt so that build changes
// retire the session; sbt does not pick up build edits without a reload.
// Watch failures are logged and otherwise ignored.
func (p *Project) ensureWatcherLocked() {
	if p.watcher != nil {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("cannot watch build.sbt", "root", p.Root, "err", err)
		return
	}
	if err := watcher.Add(filepath.Join(p.Root, "build.sbt")); err != nil {
		slog.Warn("cannot watch build.sbt", "root", p.Root, "err", err)
		watcher.Close()
		return
	}
	p.watcher = watcher
	go p.watchLoop(watcher)
}

func (p *Project) watchLoop(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Info("build.sbt changed, sbt session will restart on next use", "root", p.Root)
				p.markStale()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("build.sbt watch error", "root", p.Root, "err", err)
		}
	}
}

func (p *Project) markStale() {
	p.mu.Lock()
	p.stale = true
	p.mu.Unlock()
}

// execute runs one command on a ready session. CommandTimeout and
// UnexpectedTermination are folded into a failed (output, 1) result the
// way sbt's own error output would read; everything else is returned as
// an error for the caller to report.
func (p *Project) execute(command string) (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, err := p.ensureReadyLocked()
	if err != nil {
		return "", 0, err
	}

	output, code, err := session.Execute(command, commandTimeout)
	if err != nil {
		var timeoutErr *sbt.TimeoutError
		var termErr *sbt.TerminatedError
		if errors.As(err, &timeoutErr) || errors.As(err, &termErr) {
			return err.Error(), 1, nil
		}
		return "", 0, err
	}
	return output, code, nil
}

// Scalac compiles one file with the development compiler through the sbt
// session. -color:never is always prepended so output stays free of ANSI
// escape codes.
func (p *Project) Scalac(file string, options []string) string {
	command := []string{"scalac"}
	if file != "" {
		command = append(command, file)
	}
	command = append(command, "-color:never")
	command = append(command, options...)

	output, code, err := p.execute(strings.Join(command, " "))
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	switch {
	case code == 0 && output == "":
		return fmt.Sprintf("Successfully compiled %s", file)
	case code == 0:
		return fmt.Sprintf("Successfully compiled %s\n\nOutput:\n%s", file, output)
	default:
		return fmt.Sprintf("Compilation failed for %s\n\n%s", file, output)
	}
}

// TestCompilation runs the compilation test suite, filtered to tests whose
// path contains pattern when it is non-empty.
func (p *Project) TestCompilation(pattern string) string {
	command := "testCompilation"
	if pattern != "" {
		command += " " + pattern
	}

	output, code, err := p.execute(command)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	if code == 0 {
		if output == "" {
			return "Test compilation succeeded"
		}
		return fmt.Sprintf("Test compilation succeeded\n\n%s", output)
	}
	return fmt.Sprintf("Test compilation failed\n\n%s", output)
}

// Close shuts down the watcher and any live session. Safe to call twice.
func (p *Project) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		p.watcher.Close()
		p.watcher = nil
	}
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}
}

// Registry maps working roots to projects. It is constructed in main and
// handed to the tool constructors explicitly; there is no ambient global
// project.
type Registry struct {
	defaultRoot string

	mu       sync.Mutex
	projects map[string]*Project
}

func NewRegistry(defaultRoot string) *Registry {
	return &Registry{
		defaultRoot: defaultRoot,
		projects:    make(map[string]*Project),
	}
}

// Project returns the project for root, creating it on first use. An empty
// root selects the registry's default. Distinct roots get independent
// sessions that may run concurrently.
func (r *Registry) Project(root string) (*Project, error) {
	if root == "" {
		root = r.defaultRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root %s: %w", root, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if project, ok := r.projects[abs]; ok {
		return project, nil
	}
	project := newProject(abs)
	r.projects[abs] = project
	return project, nil
}

// CloseAll shuts down every live session. Deferred at the top level so
// child processes never outlive the server.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, project := range r.projects {
		project.Close()
	}
	r.projects = make(map[string]*Project)
}

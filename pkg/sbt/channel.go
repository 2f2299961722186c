package sbt

import (
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/creack/pty"
)

const (
	readChunkSize   = 4096
	exitWaitTimeout = 10 * time.Second
)

// channel is the seam between the session state machine and the real
// pseudo-terminal. Tests substitute fakes.
type channel interface {
	// Send writes line followed by a newline to the child's input.
	Send(line string) error

	// ReadUntil blocks until one of patterns matches the accumulated
	// output, the timeout elapses, or the child closes its output stream.
	// On a match it returns the index of the winning pattern and the text
	// preceding the match; the match itself is consumed but not returned.
	// On timeout or stream end it returns ErrReadTimeout or ErrStreamEnded
	// along with whatever text accumulated. Consumed bytes are never
	// re-read.
	ReadUntil(patterns []*regexp.Regexp, timeout time.Duration) (int, string, error)

	// Terminate shuts the child down. Graceful termination sends an exit
	// command and waits a bounded time before falling back to a kill.
	// Safe to call more than once and on an already-dead process.
	Terminate(graceful bool) error
}

// ptyChannel owns one child process attached to the slave side of a
// pseudo-terminal pair. A reader goroutine delivers output chunks over
// c.out; ReadUntil consumes them against a pattern set.
type ptyChannel struct {
	cmd  *exec.Cmd
	ptmx *os.File

	out  chan []byte   // chunks from the reader goroutine; closed on EOF
	done chan struct{} // closed once the child has been reaped

	// received but not yet consumed by ReadUntil; only the ReadUntil
	// caller touches this, one command in flight at a time
	pending []byte

	termOnce sync.Once
	termErr  error
}

func startPTYChannel(dir string, args []string) (*ptyChannel, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "TERM=dumb")

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	c := &ptyChannel{
		cmd:  cmd,
		ptmx: ptmx,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}

	go c.readLoop()
	go func() {
		cmd.Wait()
		close(c.done)
	}()

	return c, nil
}

func (c *ptyChannel) readLoop() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.out <- data
		}
		if err != nil {
			close(c.out)
			return
		}
	}
}

func (c *ptyChannel) Send(line string) error {
	_, err := c.ptmx.Write([]byte(line + "\n"))
	return err
}

func (c *ptyChannel) ReadUntil(patterns []*regexp.Regexp, timeout time.Duration) (int, string, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if idx, loc, ok := Match(c.pending, patterns); ok {
			before := string(c.pending[:loc[0]])
			c.pending = c.pending[loc[1]:]
			return idx, before, nil
		}

		select {
		case data, ok := <-c.out:
			if !ok {
				accumulated := string(c.pending)
				c.pending = nil
				return -1, accumulated, ErrStreamEnded
			}
			c.pending = append(c.pending, data...)
		case <-deadline.C:
			// Pending bytes stay buffered; a later read may still find
			// its prompt in them.
			return -1, string(c.pending), ErrReadTimeout
		}
	}
}

func (c *ptyChannel) Terminate(graceful bool) error {
	c.termOnce.Do(func() {
		c.termErr = c.terminate(graceful)
	})
	return c.termErr
}

func (c *ptyChannel) terminate(graceful bool) error {
	if graceful {
		if err := c.Send("exit"); err == nil {
			select {
			case <-c.done:
				return c.ptmx.Close()
			case <-time.After(exitWaitTimeout):
			}
		}
	}

	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	err := c.ptmx.Close()

	select {
	case <-c.done:
	case <-time.After(exitWaitTimeout):
	}
	return err
}

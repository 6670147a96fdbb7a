package console

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type byteSink struct {
	mu  sync.Mutex
	buf []byte
}

func (s *byteSink) InputByte(b byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, b)
}

func (s *byteSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buf)
}

// scriptedReader returns queued lines and errors in order.
type scriptedReader struct {
	lines  []string
	errs   []error
	closed chan struct{}
	once   sync.Once
}

func newScriptedReader() *scriptedReader {
	return &scriptedReader{closed: make(chan struct{})}
}

func (r *scriptedReader) push(line string, err error) *scriptedReader {
	r.lines = append(r.lines, line)
	r.errs = append(r.errs, err)
	return r
}

func (r *scriptedReader) Readline() (string, error) {
	if len(r.lines) == 0 {
		<-r.closed
		return "", io.EOF
	}
	line, err := r.lines[0], r.errs[0]
	r.lines, r.errs = r.lines[1:], r.errs[1:]
	return line, err
}

func (r *scriptedReader) Close() error {
	r.once.Do(func() { close(r.closed) })
	return nil
}

func newTestConsole(rl lineReader) *Console {
	return &Console{rl: rl, out: &bytes.Buffer{}, terminator: '\r'}
}

func TestRun_FeedsLinesWithTerminator(t *testing.T) {
	rl := newScriptedReader().
		push("led on", nil).
		push("", nil).
		push("status", nil).
		push("", io.EOF)
	c := newTestConsole(rl)
	sink := &byteSink{}

	stopped := false
	c.Run(context.Background(), sink, func() { stopped = true })

	assert.Equal(t, "led on\r\rstatus\r", sink.String())
	assert.True(t, stopped, "EOF ends the session")
}

func TestRun_InterruptHandling(t *testing.T) {
	rl := newScriptedReader().
		push("half typed", readline.ErrInterrupt).
		push("sent", nil).
		push("", readline.ErrInterrupt)
	c := newTestConsole(rl)
	sink := &byteSink{}

	stopped := false
	c.Run(context.Background(), sink, func() { stopped = true })

	assert.Equal(t, "sent\r", sink.String())
	assert.True(t, stopped, "^C on an empty line ends the session")
}

func TestRun_StopsOnCancel(t *testing.T) {
	rl := newScriptedReader()
	c := newTestConsole(rl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, &byteSink{}, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, c.Close())
}

func TestStdout(t *testing.T) {
	c := newTestConsole(newScriptedReader())
	_, err := c.Stdout().Write([]byte("hi"))
	require.NoError(t, err)
}

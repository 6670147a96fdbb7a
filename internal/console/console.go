package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/chzyer/readline"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

// Sink receives input bytes one at a time.
type Sink interface {
	InputByte(b byte)
}

// lineReader is the part of *readline.Instance the console uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// Console is an interactive terminal input source. Each entered line is
// sent to the sink byte by byte followed by the command terminator, as if it
// had been typed on a UART.
type Console struct {
	rl         lineReader
	out        io.Writer
	terminator byte
	closeOnce  sync.Once
}

// New opens a readline prompt on the controlling terminal.
func New(cfg config.ConsoleConfig, terminator byte) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cfg.Prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{rl: rl, out: rl.Stdout(), terminator: terminator}, nil
}

// Stdout returns a writer that redraws the prompt around output.
// Use it as the output sink so inbound messages do not corrupt the input line.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// Run reads lines until ctx is done, end of input, or ^C on an empty line.
// It calls stop when the user ends the session.
func (c *Console) Run(ctx context.Context, sink Sink, stop context.CancelFunc) {
	defer c.Close() //nolint:errcheck // Close error is not actionable here

	go func() {
		<-ctx.Done()
		c.Close() //nolint:errcheck // Unblocks Readline
	}()

	for {
		line, err := c.rl.Readline()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) && len(line) > 0 {
				continue
			}
			if stop != nil {
				stop()
			}
			return
		}

		for i := 0; i < len(line); i++ {
			sink.InputByte(line[i])
		}
		sink.InputByte(c.terminator)
	}
}

// Close releases the terminal.
func (c *Console) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.rl.Close()
	})
	return err
}

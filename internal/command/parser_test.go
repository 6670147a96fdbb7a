package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// collect feeds input and returns a copy of every completed line.
func collect(capacity int, input string) ([]string, *Parser) {
	var lines []string
	p := NewParser(capacity, '\r', func(line []byte) {
		lines = append(lines, string(line))
	})
	for i := 0; i < len(input); i++ {
		p.Feed(input[i])
	}
	return lines, p
}

func TestParser_Feed(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		input     string
		want      []string
		pending   int
		truncated uint64
	}{
		{"single line", 128, "status\r", []string{"status"}, 0, 0},
		{"two lines", 128, "a\rbc\r", []string{"a", "bc"}, 0, 0},
		{"empty line delivered", 128, "\r", []string{""}, 0, 0},
		{"partial line held", 128, "abc", nil, 3, 0},
		{"newline is data", 128, "a\nb\r", []string{"a\nb"}, 0, 0},
		{"overflow truncates", 4, "abcdef\r", []string{"abcd"}, 0, 2},
		{"exactly full", 4, "abcd\r", []string{"abcd"}, 0, 0},
		{"reset after overflow", 2, "abc\rxy\r", []string{"ab", "xy"}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, p := collect(tt.capacity, tt.input)

			assert.Equal(t, tt.want, lines)
			assert.Equal(t, tt.pending, p.Len())
			assert.Equal(t, tt.truncated, p.Truncated())
		})
	}
}

func TestParser_LineAliasesBuffer(t *testing.T) {
	var held []byte
	p := NewParser(8, '\r', func(line []byte) {
		held = line
	})

	for _, b := range []byte("abc\rxyz") {
		p.Feed(b)
	}

	// The retained slice now shows the next line's bytes.
	assert.Equal(t, "xyz", string(held[:3:3]))
	assert.Equal(t, 3, cap(held), "line capacity is limited to its length")
}

func TestParser_ResetsWhenCallbackPanics(t *testing.T) {
	p := NewParser(8, '\r', func([]byte) {
		panic("handler failed")
	})
	p.Feed('a')

	assert.Panics(t, func() { p.Feed('\r') })
	assert.Equal(t, 0, p.Len())
}

func TestParser_CustomTerminator(t *testing.T) {
	var lines []string
	p := NewParser(16, ';', func(line []byte) {
		lines = append(lines, string(line))
	})
	for _, b := range []byte("on;off\r;") {
		p.Feed(b)
	}

	assert.Equal(t, []string{"on", "off\r"}, lines)
}

func TestParser_NilCallback(t *testing.T) {
	p := NewParser(0, '\r', nil)

	assert.NotPanics(t, func() {
		p.Feed('a')
		p.Feed('\r')
	})
	assert.Equal(t, 0, p.Len())
}

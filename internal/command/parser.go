package command

// DefaultLineSize is the longest command line kept; extra bytes are dropped.
const DefaultLineSize = 128

// DefaultTerminator ends a command line.
const DefaultTerminator = '\r'

// Parser accumulates bytes into a line and hands each completed line to a
// callback. It is not safe for concurrent use; the pipeline's consumer
// goroutine is its only caller.
type Parser struct {
	buf        []byte
	n          int
	terminator byte
	onComplete func(line []byte)
	truncated  uint64
}

// NewParser returns a parser with a line buffer of capacity bytes.
//
// onComplete receives a slice aliasing the parser's buffer. It is valid only
// until onComplete returns; copy it to keep it. Empty lines are delivered too.
func NewParser(capacity int, terminator byte, onComplete func(line []byte)) *Parser {
	if capacity < 1 {
		capacity = 1
	}
	return &Parser{
		buf:        make([]byte, capacity),
		terminator: terminator,
		onComplete: onComplete,
	}
}

// Feed consumes one byte. On the terminator the current line is delivered and
// the buffer is reset, even if the callback panics. Otherwise the byte is
// appended, or dropped if the line is already full.
func (p *Parser) Feed(b byte) {
	if b == p.terminator {
		defer p.Reset()
		if p.onComplete != nil {
			p.onComplete(p.buf[:p.n:p.n])
		}
		return
	}

	if p.n == len(p.buf) {
		p.truncated++
		return
	}
	p.buf[p.n] = b
	p.n++
}

// Reset discards the partial line.
func (p *Parser) Reset() {
	p.n = 0
}

// Len returns the length of the partial line.
func (p *Parser) Len() int {
	return p.n
}

// Truncated returns how many bytes were dropped because a line was full.
func (p *Parser) Truncated() uint64 {
	return p.truncated
}

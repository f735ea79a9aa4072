// parser.go reads client requests in the RESP wire format.
//
// A server only ever receives two request shapes:
//
//   - Arrays of bulk strings, sent by client libraries and redis-cli:
//     "*3\r\n$6\r\nBF.ADD\r\n$4\r\nseen\r\n$5\r\nalice\r\n"
//   - Inline commands, typed by hand over netcat or telnet:
//     "BF.ADD seen alice\r\n"
//
// Limits
// ======
//
// Every length a client announces is checked before memory is reserved for
// it. Header lines are capped at MaxLineSize, arrays at MaxArrayLen elements
// and bulk strings at MaxBulkLength bytes.

package main

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
)

const (
	MaxBulkLength = 512 * 1024 * 1024
	MaxArrayLen   = 1 << 20
	MaxLineSize   = 64 * 1024
)

var (
	ErrInvalidSyntax = errors.New("ERR protocol error: invalid syntax")
	ErrLineTooLong   = errors.New("ERR protocol error: line too long")
	ErrBulkTooLarge  = errors.New("ERR protocol error: bulk string exceeds 512MB limit")
	ErrArrayTooLong  = errors.New("ERR protocol error: array exceeds 1M elements limit")
)

// Parser decodes one request at a time from a buffered stream.
type Parser struct {
	r *bufio.Reader

	// spill holds a line that did not fit in the reader buffer. It is reused
	// across requests.
	spill []byte
}

func NewParser(rd io.Reader) *Parser {
	return &Parser{r: bufio.NewReaderSize(rd, 4096)}
}

// Parse returns the next request as its command name followed by arguments.
// An empty or null array yields an empty slice.
func (p *Parser) Parse() ([]string, error) {
	line, err := p.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, ErrInvalidSyntax
	}
	if line[0] != '*' {
		return splitInline(line)
	}

	n, err := parseLength(line[1:], MaxArrayLen, ErrArrayTooLong)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}
	args := make([]string, n)
	for i := range args {
		if args[i], err = p.readBulk(); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// Buffered reports how many request bytes are already read ahead. A non-zero
// value means the client pipelined more commands.
func (p *Parser) Buffered() int {
	return p.r.Buffered()
}

// readLine returns the next line with its LF or CRLF terminator removed. The
// result aliases the reader buffer or p.spill and is only valid until the
// next read.
func (p *Parser) readLine() ([]byte, error) {
	p.spill = p.spill[:0]
	for {
		chunk, err := p.r.ReadSlice('\n')
		if len(p.spill)+len(chunk) > MaxLineSize+2 {
			return nil, ErrLineTooLong
		}
		switch {
		case err == nil && len(p.spill) == 0:
			return trimEOL(chunk), nil
		case err == nil:
			p.spill = append(p.spill, chunk...)
			return trimEOL(p.spill), nil
		case errors.Is(err, bufio.ErrBufferFull):
			p.spill = append(p.spill, chunk...)
		default:
			return nil, err
		}
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// parseLength decodes the count that follows a '*' or '$' marker. Negative
// counts are returned as is for the caller to interpret.
func parseLength(field []byte, limit int, tooLarge error) (int, error) {
	n, err := strconv.Atoi(string(bytes.TrimSpace(field)))
	if err != nil {
		return 0, ErrInvalidSyntax
	}
	if n > limit {
		return 0, tooLarge
	}
	return n, nil
}

func splitInline(line []byte) ([]string, error) {
	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, ErrInvalidSyntax
	}
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out, nil
}

// readBulk reads "$<len>\r\n<data>\r\n". A null bulk string ($-1) reads as
// the empty string.
func (p *Parser) readBulk() (string, error) {
	header, err := p.readLine()
	if err != nil {
		return "", err
	}
	if len(header) == 0 || header[0] != '$' {
		return "", ErrInvalidSyntax
	}

	size, err := parseLength(header[1:], MaxBulkLength, ErrBulkTooLarge)
	if err != nil {
		return "", err
	}
	if size == -1 {
		return "", nil
	}
	if size < 0 {
		return "", ErrInvalidSyntax
	}

	payload := make([]byte, size+2)
	if _, err := io.ReadFull(p.r, payload); err != nil {
		return "", err
	}
	if !bytes.HasSuffix(payload, []byte("\r\n")) {
		return "", ErrInvalidSyntax
	}
	return string(payload[:size]), nil
}

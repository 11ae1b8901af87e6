package protocol

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

const (
	// MaxLineLength bounds a single protocol line, newline included.
	MaxLineLength = 64 * 1024

	// MaxResponseLines bounds the lines read while waiting for the menu.
	MaxResponseLines = 32
)

// MenuTerminator is the last menu line. ReadResponse stops after it.
var MenuTerminator = Menu[len(Menu)-1]

func isMenuLine(line string) bool {
	for _, m := range Menu {
		if line == m {
			return true
		}
	}
	return false
}

// LineConn reads and writes newline-delimited lines over a net.Conn.
// It is not safe for concurrent use.
type LineConn struct {
	conn         net.Conn
	r            *bufio.Reader
	w            *bufio.Writer
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewLineConn wraps conn. A zero timeout disables the per-call deadline.
func NewLineConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *LineConn {
	return &LineConn{
		conn:         conn,
		r:            bufio.NewReaderSize(conn, MaxLineLength),
		w:            bufio.NewWriter(conn),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// Conn returns the underlying connection.
func (c *LineConn) Conn() net.Conn {
	return c.conn
}

// ReadLine returns the next line without its line ending. A final line
// without a newline is returned before io.EOF.
func (c *LineConn) ReadLine() (string, error) {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil && c.r.Buffered() == 0 {
			// A peer that closed reports EOF, not the deadline failure.
			if _, perr := c.r.Peek(1); errors.Is(perr, io.EOF) {
				return "", io.EOF
			}
			return "", err
		}
	}

	raw, err := c.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", ErrLineTooLong
	}
	line := strings.TrimRight(string(raw), "\r\n")
	if err != nil {
		if errors.Is(err, io.EOF) && len(raw) > 0 {
			return line, nil
		}
		return "", err
	}
	return line, nil
}

// WriteLine writes lines, each followed by a newline, and flushes.
func (c *LineConn) WriteLine(lines ...string) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	for _, l := range lines {
		if _, err := c.w.WriteString(l); err != nil {
			return err
		}
		if err := c.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// WriteMenu sends the menu block.
func (c *LineConn) WriteMenu() error {
	return c.WriteLine(Menu...)
}

// ReadResponse reads reply lines until the menu terminator and returns the
// lines that are not part of the menu. It returns early, without error,
// after a terminal line.
func (c *LineConn) ReadResponse() ([]string, error) {
	var lines []string
	for n := 0; n < MaxResponseLines; n++ {
		line, err := c.ReadLine()
		if err != nil {
			return lines, err
		}
		if line == MenuTerminator {
			return lines, nil
		}
		if isMenuLine(line) {
			continue
		}
		lines = append(lines, line)
		if IsTerminal(line) {
			return lines, nil
		}
	}
	return lines, ErrUnexpectedResponse
}

// Close closes the underlying connection.
func (c *LineConn) Close() error {
	return c.conn.Close()
}

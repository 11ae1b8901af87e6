package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/flashbots/tdesoracle/protocol"
)

// Options configures a TCP connection to the challenge server.
type Options struct {
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultOptions returns ten second timeouts.
func DefaultOptions() *Options {
	return &Options{
		DialTimeout:  10 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Conn is a protocol.Session over one TCP connection. It is not safe for
// concurrent use.
type Conn struct {
	lc     *protocol.LineConn
	closed bool
}

var _ protocol.Session = (*Conn)(nil)

// Dial connects to addr and consumes the initial menu. Transport failures
// and rate-limit refusals are returned as RetryableError.
func Dial(ctx context.Context, addr string, opts *Options) (*Conn, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	d := net.Dialer{Timeout: opts.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, Retryable(fmt.Errorf("dial %s: %w", addr, err))
	}

	c := &Conn{lc: protocol.NewLineConn(nc, opts.ReadTimeout, opts.WriteTimeout)}
	lines, err := c.lc.ReadResponse()
	if err == nil && len(lines) > 0 {
		err = protocol.ErrorForLine(lines[0])
		if err == nil {
			err = fmt.Errorf("%w: %q before menu", protocol.ErrUnexpectedResponse, lines[0])
		}
	}
	if err != nil {
		nc.Close()
		if errors.Is(err, protocol.ErrUnexpectedResponse) {
			return nil, err
		}
		return nil, Retryable(fmt.Errorf("read menu: %w", err))
	}
	return c, nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	c.closed = true
	return c.lc.Close()
}

// exchange sends option, answers the prompt with arg when prompted, and
// returns the reply lines.
func (c *Conn) exchange(option int, prompt, arg string) ([]string, error) {
	if c.closed {
		return nil, protocol.ErrSessionClosed
	}
	if err := c.lc.WriteLine(strconv.Itoa(option)); err != nil {
		return nil, Retryable(err)
	}

	if prompt != "" {
		line, err := c.lc.ReadLine()
		if err != nil {
			return nil, Retryable(err)
		}
		if line != prompt {
			if err := protocol.ErrorForLine(line); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: expected prompt, got %q", protocol.ErrUnexpectedResponse, line)
		}
		if err := c.lc.WriteLine(arg); err != nil {
			return nil, Retryable(err)
		}
	}

	lines, err := c.lc.ReadResponse()
	if err != nil {
		return lines, Retryable(err)
	}
	return lines, nil
}

// single returns the one reply line, mapping server error lines to errors.
func single(lines []string) (string, error) {
	if len(lines) != 1 {
		return "", fmt.Errorf("%w: %d reply lines", protocol.ErrUnexpectedResponse, len(lines))
	}
	if err := protocol.ErrorForLine(lines[0]); err != nil {
		return "", err
	}
	return lines[0], nil
}

// FetchChallenge returns the encrypted challenge.
func (c *Conn) FetchChallenge(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := c.exchange(protocol.OptionFetchChallenge, "", "")
	if err != nil {
		return nil, err
	}
	line, err := single(lines)
	if err != nil {
		return nil, err
	}
	return protocol.DecodeHex(line)
}

// Decrypt submits ciphertext to the oracle. ErrBudgetExhausted closes the
// connection.
func (c *Conn) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := c.exchange(protocol.OptionDecrypt, protocol.CiphertextPrompt, protocol.EncodeHex(ciphertext))
	if err != nil {
		return nil, err
	}
	line, err := single(lines)
	if errors.Is(err, protocol.ErrBudgetExhausted) {
		c.Close()
	}
	if err != nil {
		return nil, err
	}
	return protocol.DecodeHex(line)
}

// Reveal submits the candidate plaintext. The server ends the session after
// any well-formed submission, so the connection is closed on return.
func (c *Conn) Reveal(ctx context.Context, plaintext []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lines, err := c.exchange(protocol.OptionReveal, protocol.PlaintextPrompt, protocol.EncodeHex(plaintext))
	if err != nil && !(len(lines) > 0 && IsRetryable(err)) {
		return nil, err
	}
	c.Close()

	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty reveal reply", protocol.ErrUnexpectedResponse)
	}
	if len(lines) == 1 {
		if err := protocol.ErrorForLine(lines[0]); err != nil {
			return nil, err
		}
	}
	return []byte(strings.Join(lines, "\n")), nil
}

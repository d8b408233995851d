package server

import (
	"net"

	"github.com/pkg/errors"

	"github.com/mel2oo/go-alpn/clienthello"
)

var ErrIncompleteClientHello = errors.New("Client Hello was not fully read")

// Copies everything the TLS engine reads into a Client Hello parser until the
// parser finishes or fails.
type sniffConn struct {
	net.Conn
	parser *clienthello.Parser
	done   bool
	err    error
}

func newSniffConn(c net.Conn, parser *clienthello.Parser) *sniffConn {
	return &sniffConn{
		Conn:   c,
		parser: parser,
	}
}

func (c *sniffConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 && !c.done && c.err == nil {
		c.done, c.err = c.parser.Feed(b[:n])
	}
	return n, err
}

// Returns the Client Hello seen on the connection.
func (c *sniffConn) clientHello() (clienthello.ParsedClientHello, error) {
	if c.err != nil {
		return clienthello.ParsedClientHello{}, c.err
	}
	hello, ok := c.parser.Result()
	if !ok {
		return clienthello.ParsedClientHello{}, errors.Wrapf(ErrIncompleteClientHello, "%d bytes seen", c.parser.Consumed())
	}
	return hello, nil
}

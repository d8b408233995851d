package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/net/http2"

	"github.com/mel2oo/go-alpn/alpn"
)

// ProtocolHandler serves a connection after the handshake, using the protocol
// it is bound to. ServeProtocol returns when the connection is finished; the
// server closes it afterwards.
type ProtocolHandler interface {
	ServeProtocol(ctx context.Context, conn *tls.Conn) error
}

type ProtocolHandlerFunc func(ctx context.Context, conn *tls.Conn) error

func (f ProtocolHandlerFunc) ServeProtocol(ctx context.Context, conn *tls.Conn) error {
	return f(ctx, conn)
}

// Returns handlers that serve h over HTTP/2 and HTTP/1.1.
func HTTPHandlers(h http.Handler) map[string]ProtocolHandler {
	h2 := &http2.Server{}
	return map[string]ProtocolHandler{
		alpn.ProtocolHTTP2: ProtocolHandlerFunc(func(ctx context.Context, conn *tls.Conn) error {
			h2.ServeConn(conn, &http2.ServeConnOpts{
				Context: ctx,
				Handler: h,
			})
			return nil
		}),
		alpn.ProtocolHTTP1: ProtocolHandlerFunc(func(ctx context.Context, conn *tls.Conn) error {
			return serveHTTP1(ctx, conn, h)
		}),
	}
}

func serveHTTP1(ctx context.Context, conn *tls.Conn, h http.Handler) error {
	l := newConnListener(conn)
	srv := &http.Server{
		Handler:     h,
		BaseContext: func(net.Listener) context.Context { return ctx },
		ConnState: func(_ net.Conn, state http.ConnState) {
			if state == http.StateClosed || state == http.StateHijacked {
				l.Close()
			}
		},
	}

	stop := context.AfterFunc(ctx, func() { srv.Close() })
	defer stop()

	err := srv.Serve(l)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// A listener that accepts a single connection and then blocks until closed.
type connListener struct {
	conns     chan net.Conn
	addr      net.Addr
	done      chan struct{}
	closeOnce sync.Once
}

func newConnListener(c net.Conn) *connListener {
	conns := make(chan net.Conn, 1)
	conns <- c
	return &connListener{
		conns: conns,
		addr:  c.LocalAddr(),
		done:  make(chan struct{}),
	}
}

func (l *connListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, net.ErrClosed
	}
}

func (l *connListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *connListener) Addr() net.Addr {
	return l.addr
}

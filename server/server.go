// Package server terminates TLS and picks each connection's application
// protocol from its Client Hello before crypto/tls picks the cipher suite.
package server

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/clienthello"
	"github.com/mel2oo/go-alpn/gid"
	"github.com/mel2oo/go-alpn/tlsengine"
)

var ErrNoHandler = errors.New("no handler for the committed protocol")

type Server struct {
	opts   Options
	logger *zap.Logger
}

func New(opt ...Option) (*Server, error) {
	opts := NewOptions()
	for _, o := range opt {
		o(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	if opts.TLSConfig == nil {
		opts.TLSConfig = &tls.Config{}
	} else {
		opts.TLSConfig = opts.TLSConfig.Clone()
	}
	if opts.CertFile != "" || opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load certificate")
		}
		opts.TLSConfig.Certificates = append(opts.TLSConfig.Certificates, cert)
	}
	if len(opts.TLSConfig.Certificates) == 0 && opts.TLSConfig.GetCertificate == nil {
		return nil, errors.New("no certificate configured")
	}

	if len(opts.Protocols) == 0 {
		return nil, errors.New("no application protocols configured")
	}
	for _, p := range opts.Protocols {
		if _, ok := opts.Handlers[p]; !ok {
			return nil, errors.Wrapf(ErrNoHandler, "%q", p)
		}
	}
	if opts.DefaultProtocol != "" {
		if _, ok := opts.Handlers[opts.DefaultProtocol]; !ok {
			return nil, errors.Wrapf(ErrNoHandler, "default protocol %q", opts.DefaultProtocol)
		}
	}

	return &Server{
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.opts.Addr)
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done or l fails, and returns
// once every connection it accepted has finished. l is closed on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer l.Close()

	s.logger.Info("serving", zap.Stringer("addr", l.Addr()), zap.Strings("protocols", s.opts.Protocols))
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "failed to accept connection")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	id := gid.GenerateConnectionID()
	logger := s.logger.With(
		zap.String("connection", id.String()),
		zap.Stringer("remote", raw.RemoteAddr()))

	sniff := newSniffConn(raw, clienthello.NewParser(s.opts.Catalog))
	engine := tlsengine.New(s.opts.TLSConfig, s.opts.Catalog)

	var committed string
	selector := &alpn.PreferenceSelector{
		Protocols:  s.opts.Protocols,
		Default:    s.opts.DefaultProtocol,
		OnSelected: func(p string) { committed = p },
	}
	negotiator := alpn.NewNegotiator(selector, engine,
		alpn.WithLogger(logger),
		alpn.WithRestrictCiphers(s.opts.RestrictCiphers))

	cfg := s.opts.TLSConfig.Clone()
	cfg.GetConfigForClient = func(*tls.ClientHelloInfo) (*tls.Config, error) {
		hello, err := sniff.clientHello()
		if err != nil {
			return nil, err
		}
		if err := negotiator.PreProcess(hello, engine.EnabledCipherSuites()); err != nil {
			return nil, err
		}
		return engine.Config()
	}

	conn := tls.Server(sniff, cfg)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	handshakeCtx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	err := conn.HandshakeContext(handshakeCtx)
	cancel()
	if err != nil {
		logger.Debug("handshake failed", zap.Error(err))
		return
	}

	version, cipherSuite, err := engine.Negotiated(conn.ConnectionState())
	if err != nil {
		logger.Warn("unexpected handshake outcome", zap.Error(err))
		return
	}
	protocol, err := negotiator.PostProcess(version, cipherSuite)
	if err != nil {
		logger.Warn("protocol negotiation failed", zap.Error(err))
		return
	}

	handler, ok := s.opts.Handlers[committed]
	if !ok {
		logger.Error("no handler", zap.String("protocol", protocol))
		return
	}

	logger.Debug("negotiated",
		zap.Stringer("tls_version", version),
		zap.String("cipher_suite", cipherSuite),
		zap.String("protocol", protocol))
	if err := handler.ServeProtocol(ctx, conn); err != nil {
		logger.Debug("connection ended with error", zap.String("protocol", protocol), zap.Error(err))
	}
}

package main

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/config"
	"github.com/mel2oo/go-alpn/inspect"
	"github.com/mel2oo/go-alpn/server"
)

var (
	envFiles    []string
	logLevel    string
	development bool
)

func main() {
	root := &cobra.Command{
		Use:           "alpnd",
		Short:         "Cipher-aware ALPN negotiation from the raw Client Hello",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load (default ./.env if present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overriding ALPN_LOG_LEVEL")
	root.PersistentFlags().BoolVar(&development, "dev", false, "human-readable console logs")

	root.AddCommand(newServeCommand(), newInspectCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "alpnd: %v\n", err)
		os.Exit(1)
	}
}

// Loads the configuration, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, flags *configFlags) (config.Config, *zap.Logger, error) {
	c, err := config.Load(envFiles...)
	if err != nil {
		return c, nil, err
	}
	flags.apply(cmd.Flags(), &c)
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if err := c.Validate(); err != nil {
		return c, nil, errors.Wrap(err, "invalid configuration")
	}

	logger, err := newLogger(c.LogLevel, development)
	if err != nil {
		return c, nil, errors.Wrap(err, "failed to build logger")
	}
	return c, logger, nil
}

func newServeCommand() *cobra.Command {
	flags := &configFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Terminate TLS and serve HTTP/2 or HTTP/1.1 as negotiated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			if c.CertFile == "" {
				return errors.New("a certificate is required, see --cert and --key")
			}
			codes, err := c.CipherSuiteCodes()
			if err != nil {
				return err
			}

			s, err := server.New(
				server.WithAddr(c.Addr),
				server.WithTLSConfig(&tls.Config{CipherSuites: codes}),
				server.WithCertificateFiles(c.CertFile, c.KeyFile),
				server.WithProtocols(c.Protocols...),
				server.WithDefaultProtocol(c.DefaultProtocol),
				server.WithHandlers(server.HTTPHandlers(protocolEcho())),
				server.WithHandshakeTimeout(c.HandshakeTimeout),
				server.WithRestrictCiphers(c.RestrictCiphers),
				server.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.ListenAndServe(ctx)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// Answers every request with the connection's negotiated parameters.
func protocolEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"proto":        r.Proto,
			"alpn":         r.TLS.NegotiatedProtocol,
			"cipher_suite": tls.CipherSuiteName(r.TLS.CipherSuite),
			"tls_version":  tls.VersionName(r.TLS.Version),
		})
	})
}

func newInspectCommand() *cobra.Command {
	flags := &configFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <capture.pcap|->",
		Short: "Report the Client Hellos in a packet capture as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			opts := []inspect.Option{
				inspect.WithEnabledCipherSuites(c.CipherSuites...),
				inspect.WithProtocols(c.Protocols...),
				inspect.WithDefaultProtocol(c.DefaultProtocol),
				inspect.WithRestrictCiphers(c.RestrictCiphers),
				inspect.WithLogger(logger),
			}
			if args[0] == "-" {
				opts = append(opts, inspect.WithSource(os.Stdin))
			} else {
				opts = append(opts, inspect.WithReadName(args[0]))
			}

			inspector, err := inspect.New(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			reports, err := inspector.Run(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for r := range reports {
				if err := enc.Encode(r); err != nil {
					return errors.Wrap(err, "failed to write report")
				}
			}
			return nil
		},
	}
	flags.registerNegotiation(cmd.Flags())
	return cmd
}

package alpn

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/clienthello"
	"github.com/mel2oo/go-alpn/optionals"
	"github.com/mel2oo/go-alpn/sets"
	"github.com/mel2oo/go-alpn/slices"
)

type Phase int

const (
	PhaseFresh Phase = iota
	PhasePreProcessed
	PhasePostProcessed

	// A fatal error ended the negotiation.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseFresh:
		return "fresh"
	case PhasePreProcessed:
		return "pre-processed"
	case PhasePostProcessed:
		return "post-processed"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// A cipher suite and the protocol the selector would speak over it.
type CandidatePair struct {
	CipherSuite string `json:"cipher_suite"`
	Protocol    string `json:"protocol"`
}

// Negotiator picks the application protocol for one connection in two steps.
// PreProcess runs on the Client Hello, before the engine has chosen a cipher
// suite, and configures the engine with a provisional protocol. PostProcess
// runs once the engine has chosen, and commits the protocol. A Negotiator is
// not safe for concurrent use.
type Negotiator struct {
	opts     Options
	selector Selector
	engine   Engine
	logger   *zap.Logger

	phase       Phase
	hello       clienthello.ParsedClientHello
	pairs       []CandidatePair
	provisional string
	advertised  []string
	final       string
}

func NewNegotiator(selector Selector, engine Engine, opt ...Option) *Negotiator {
	opts := NewOptions()
	for _, o := range opt {
		o(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Negotiator{
		opts:     opts,
		selector: selector,
		engine:   engine,
		logger:   opts.Logger.With(zap.String("negotiation", opts.ID.String())),
		phase:    PhaseFresh,
	}
}

// PreProcess computes the candidate pairs for the cipher suites both the client
// offered and the engine has enabled, then configures the engine. enabled is
// in the engine's preference order, which the advertised cipher suites keep.
func (n *Negotiator) PreProcess(hello clienthello.ParsedClientHello, enabled []string) error {
	if n.phase != PhaseFresh {
		return errors.Wrapf(ErrPhase, "PreProcess called in phase %s", n.phase)
	}
	n.hello = hello

	offered := sets.NewSet(hello.CipherSuites...)
	seen := sets.NewSet[string]()
	var accepted []string
	for _, c := range offered.Filter(enabled) {
		if seen.Contains(c) {
			continue
		}
		seen.Insert(c)

		if p, ok := n.selectProtocol(c).Get(); ok {
			n.pairs = append(n.pairs, CandidatePair{CipherSuite: c, Protocol: p})
			accepted = append(accepted, c)
		}
	}

	if len(n.pairs) == 0 {
		n.phase = PhaseFailed
		n.logger.Debug("no acceptable protocol",
			zap.Stringer("tls_version", hello.Version),
			zap.Int("shared_cipher_suites", seen.Size()),
			zap.Strings("protocols", hello.Protocols))
		return errors.Wrapf(ErrNoApplicationProtocol,
			"none of %d shared cipher suites can carry any of %q", seen.Size(), hello.Protocols)
	}

	protocols := distinctProtocols(n.pairs)
	n.selector.Sort(protocols)
	n.provisional = protocols[0]

	n.advertised = accepted
	if n.opts.RestrictCiphers {
		n.advertised = slices.Map(
			slices.Filter(n.pairs, func(p CandidatePair) bool { return p.Protocol == n.provisional }),
			func(p CandidatePair) string { return p.CipherSuite },
		)
	}

	if err := n.engine.Configure(n.advertised, n.provisional); err != nil {
		n.phase = PhaseFailed
		return errors.Wrap(err, "failed to configure TLS engine")
	}

	n.phase = PhasePreProcessed
	n.logger.Debug("pre-processed Client Hello",
		zap.Stringer("tls_version", hello.Version),
		zap.String("provisional", n.provisional),
		zap.Int("pairs", len(n.pairs)),
		zap.Int("advertised_cipher_suites", len(n.advertised)))
	return nil
}

// PostProcess reconciles the version and cipher suite the engine negotiated
// with the candidate pairs, and returns the committed protocol. Every error
// is fatal to the connection.
func (n *Negotiator) PostProcess(version clienthello.TLSVersion, cipher string) (string, error) {
	if n.phase != PhasePreProcessed {
		return "", errors.Wrapf(ErrPhase, "PostProcess called in phase %s", n.phase)
	}

	if version != n.hello.Version {
		n.phase = PhaseFailed
		return "", errors.Wrapf(ErrTLSVersionMismatch, "client offered %s, engine negotiated %s", n.hello.Version, version)
	}

	matching := slices.Filter(n.pairs, func(p CandidatePair) bool { return p.CipherSuite == cipher })
	if len(matching) == 0 {
		n.phase = PhaseFailed
		return "", errors.Wrapf(ErrCipherSuiteMismatch, "negotiated %s", cipher)
	}

	protocols := distinctProtocols(matching)
	final := n.provisional
	if !sets.NewSet(protocols...).Contains(n.provisional) {
		n.selector.Sort(protocols)
		replacement := protocols[0]
		if err := n.rebind(replacement); err != nil {
			n.phase = PhaseFailed
			n.logger.Debug("provisional protocol is stale",
				zap.String("provisional", n.provisional),
				zap.String("replacement", replacement),
				zap.String("cipher_suite", cipher),
				zap.Error(err))
			return "", &StaleProtocolError{
				Provisional: n.provisional,
				Replacement: replacement,
				CipherSuite: cipher,
				Cause:       err,
			}
		}
		n.logger.Debug("rebound stale provisional protocol",
			zap.String("provisional", n.provisional),
			zap.String("replacement", replacement))
		final = replacement
	}

	n.final = final
	n.phase = PhasePostProcessed
	n.selector.Selected(final)
	n.logger.Debug("committed application protocol",
		zap.String("protocol", final),
		zap.String("cipher_suite", cipher))
	return final, nil
}

func (n *Negotiator) rebind(protocol string) error {
	r, ok := n.engine.(Rebinder)
	if !ok {
		return ErrRebindUnsupported
	}
	return errors.Wrapf(r.Rebind(protocol), "failed to rebind engine to %q", protocol)
}

// A panicking selector rejects the cipher suite instead of failing the
// connection.
func (n *Negotiator) selectProtocol(cipher string) (protocol optionals.Optional[string]) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Debug("protocol selector panicked",
				zap.String("cipher_suite", cipher),
				zap.Any("panic", r))
			protocol = optionals.None[string]()
		}
	}()
	protocols := append([]string(nil), n.hello.Protocols...)
	return n.selector.Select(n.hello.Version, cipher, protocols)
}

func (n *Negotiator) Phase() Phase {
	return n.phase
}

func (n *Negotiator) ID() string {
	return n.opts.ID.String()
}

// The candidate pairs, in engine cipher suite order.
func (n *Negotiator) Pairs() []CandidatePair {
	return append([]CandidatePair(nil), n.pairs...)
}

func (n *Negotiator) Provisional() string {
	return n.provisional
}

// The cipher suites passed to Engine.Configure.
func (n *Negotiator) Advertised() []string {
	return append([]string(nil), n.advertised...)
}

// The committed protocol, once PostProcess has succeeded.
func (n *Negotiator) Final() optionals.Optional[string] {
	if n.phase != PhasePostProcessed {
		return optionals.None[string]()
	}
	return optionals.Some(n.final)
}

// Distinct protocols of pairs, in first-seen order.
func distinctProtocols(pairs []CandidatePair) []string {
	seen := sets.NewSet[string]()
	var rv []string
	for _, p := range pairs {
		if !seen.Contains(p.Protocol) {
			seen.Insert(p.Protocol)
			rv = append(rv, p.Protocol)
		}
	}
	return rv
}

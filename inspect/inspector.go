// Package inspect finds Client Hellos in packet captures and reports what a
// server would negotiate for each.
package inspect

import (
	"context"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/alpn"
	"github.com/mel2oo/go-alpn/clienthello"
	"github.com/mel2oo/go-alpn/sets"
	"github.com/mel2oo/go-alpn/slices"
)

// Packets between checks for idle flows.
const flushInterval = 1000

type Inspector struct {
	opts   Options
	reader PacketReader
}

func New(opt ...Option) (*Inspector, error) {
	opts := NewOptions()
	for _, o := range opt {
		o(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var reader PacketReader
	switch {
	case opts.Source != nil:
		reader = NewStreamReader(opts.Source)
	case opts.ReadName != "":
		reader = NewFileReader(opts.ReadName)
	default:
		return nil, errors.New("no capture to read")
	}

	if len(opts.EnabledCipherSuites) > 0 && len(opts.Protocols) == 0 && opts.DefaultProtocol == "" {
		return nil, errors.New("dry run needs at least one protocol")
	}

	return &Inspector{
		opts:   opts,
		reader: reader,
	}, nil
}

// Run reads the capture and emits a Report for every TCP flow that starts with
// a Client Hello. The channel is closed once the capture is exhausted or ctx
// is done.
func (i *Inspector) Run(ctx context.Context) (<-chan Report, error) {
	packets, err := i.reader.Packets(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan Report, 100)
	streamFactory := &helloStreamFactory{
		ctx:       ctx,
		inspector: i,
		out:       out,
	}
	streamPool := reassembly.NewStreamPool(streamFactory)
	assembler := reassembly.NewAssembler(streamPool)
	assembler.AssemblerOptions.MaxBufferedPagesTotal = i.opts.MaxBufferedPagesTotal
	assembler.AssemblerOptions.MaxBufferedPagesPerConnection = i.opts.MaxBufferedPagesPerConnection

	go func() {
		defer close(out)

		var latest time.Time
		count := 0
		for packet := range packets {
			if ts := packet.Metadata().Timestamp; ts.After(latest) {
				latest = ts
			}
			i.handlePacket(assembler, packet)

			count++
			if count%flushInterval == 0 {
				threshold := latest.Add(-i.opts.StreamCloseTimeout)
				flushed, closed := assembler.FlushWithOptions(
					reassembly.FlushOptions{
						T:  threshold,
						TC: threshold,
					})
				if flushed != 0 || closed != 0 {
					i.opts.Logger.Debug("idle flows",
						zap.Int("flushed", flushed),
						zap.Int("closed", closed))
				}
			}
		}

		// Gives every flow still waiting on its Client Hello a final report.
		assembler.FlushAll()
		i.opts.Logger.Debug("capture done", zap.Int("packets", count))
	}()

	return out, nil
}

func (i *Inspector) handlePacket(assembler *reassembly.Assembler, packet gopacket.Packet) {
	defer func() {
		// A malformed packet must not end the whole capture.
		if err := recover(); err != nil {
			i.opts.Logger.Warn("packet handling panicked", zap.Any("panic", err))
		}
	}()

	if packet.NetworkLayer() == nil {
		return
	}
	tcp, ok := packet.TransportLayer().(*layers.TCP)
	if !ok {
		return
	}
	assembler.AssembleWithContext(packet.NetworkLayer().NetworkFlow(), tcp,
		contextFromTCPPacket(packet, tcp))
}

// Pre-processes hello as a server enabling the configured cipher suites would,
// recording the outcome in r.
func (i *Inspector) dryRun(r *Report, hello clienthello.ParsedClientHello) {
	if len(i.opts.EnabledCipherSuites) == 0 {
		return
	}

	selector := &alpn.PreferenceSelector{
		Protocols: i.opts.Protocols,
		Default:   i.opts.DefaultProtocol,
	}
	n := alpn.NewNegotiator(selector, &alpn.Advertisement{},
		alpn.WithLogger(i.opts.Logger),
		alpn.WithRestrictCiphers(i.opts.RestrictCiphers))
	if err := n.PreProcess(hello, i.opts.EnabledCipherSuites); err != nil {
		r.Err = err
		return
	}
	r.Pairs = n.Pairs()
	r.Provisional = n.Provisional()
	r.CandidateProtocols = sets.NewOrderedSet(slices.Map(r.Pairs, func(p alpn.CandidatePair) string {
		return p.Protocol
	})...)
}

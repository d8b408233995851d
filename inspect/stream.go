package inspect

import (
	"context"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/reassembly"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mel2oo/go-alpn/clienthello"
	"github.com/mel2oo/go-alpn/gid"
	"github.com/mel2oo/go-alpn/optionals"
)

var (
	ErrTruncated = errors.New("flow ended inside the Client Hello")
	ErrGap       = errors.New("bytes missing from the capture inside the Client Hello")
)

// Implementation of reassembly.AssemblerContext that includes TCP seq and ack
// numbers.
type assemblerCtxWithSeq struct {
	ci       gopacket.CaptureInfo
	seq, ack reassembly.Sequence
}

func contextFromTCPPacket(p gopacket.Packet, t *layers.TCP) *assemblerCtxWithSeq {
	return &assemblerCtxWithSeq{
		ci:  p.Metadata().CaptureInfo,
		seq: reassembly.Sequence(t.Seq),
		ack: reassembly.Sequence(t.Ack),
	}
}

func (ctx *assemblerCtxWithSeq) GetCaptureInfo() gopacket.CaptureInfo {
	return ctx.ci
}

// Implements reassembly.StreamFactory.
type helloStreamFactory struct {
	ctx       context.Context
	inspector *Inspector
	out       chan<- Report
}

func (fact *helloStreamFactory) New(netFlow, tcpFlow gopacket.Flow, _ *layers.TCP,
	ac reassembly.AssemblerContext) reassembly.Stream {
	flow := net.JoinHostPort(netFlow.Src().String(), tcpFlow.Src().String()) +
		" -> " + net.JoinHostPort(netFlow.Dst().String(), tcpFlow.Dst().String())

	return &helloStream{
		factory:         fact,
		id:              gid.GenerateFlowID(),
		flow:            flow,
		observationTime: ac.GetCaptureInfo().Timestamp,
		state:           streamSniffing,
	}
}

type streamState int

const (
	// Waiting for enough bytes to tell whether the flow starts with a
	// Client Hello.
	streamSniffing streamState = iota
	streamParsing
	streamFinished
)

// Follows the client to server direction of a TCP connection until its
// Client Hello is parsed. The side that sent the first packet is taken to be
// the client.
type helloStream struct {
	factory         *helloStreamFactory
	id              gid.FlowID
	flow            string
	observationTime time.Time

	state  streamState
	prefix []byte
	parser *clienthello.Parser
}

func (s *helloStream) Accept(_ *layers.TCP, _ gopacket.CaptureInfo, _ reassembly.TCPFlowDirection,
	_ reassembly.Sequence, start *bool, _ reassembly.AssemblerContext) bool {
	// Captures often begin mid-connection, without the SYN.
	*start = true
	return s.state != streamFinished
}

func (s *helloStream) ReassembledSG(sg reassembly.ScatterGather, _ reassembly.AssemblerContext) {
	dir, _, _, skip := sg.Info()
	if dir != reassembly.TCPDirClientToServer || s.state == streamFinished {
		return
	}

	if skip > 0 && s.state == streamParsing {
		s.finish(errors.Wrapf(ErrGap, "%d bytes", skip))
		return
	}

	length, _ := sg.Lengths()
	if length == 0 {
		return
	}
	data := sg.Fetch(length)

	if s.state == streamSniffing {
		s.prefix = append(s.prefix, data...)
		decision, _ := clienthello.Accepts(s.prefix, false)
		switch decision {
		case clienthello.Reject:
			s.state = streamFinished
			s.prefix = nil
			return
		case clienthello.NeedMoreData:
			return
		}

		s.state = streamParsing
		s.parser = clienthello.NewParser(s.factory.inspector.opts.Catalog)
		data, s.prefix = s.prefix, nil
	}

	done, err := s.parser.Feed(data)
	switch {
	case err != nil:
		s.finish(err)
	case done:
		s.finish(nil)
	}
}

func (s *helloStream) ReassemblyComplete(_ reassembly.AssemblerContext) bool {
	if s.state == streamParsing {
		s.finish(errors.Wrapf(ErrTruncated, "after %d bytes", s.parser.Consumed()))
	}
	s.state = streamFinished
	return true
}

func offeredProtocols(hello optionals.Optional[clienthello.ParsedClientHello]) []string {
	return optionals.Map(hello, func(h clienthello.ParsedClientHello) []string {
		return h.Protocols
	}).GetOrDefault(nil)
}

// Emits the report for the flow.
func (s *helloStream) finish(err error) {
	s.state = streamFinished

	r := Report{
		ID:              s.id,
		Flow:            s.flow,
		ObservationTime: s.observationTime,
		Err:             err,
	}
	if err == nil {
		hello, _ := s.parser.Result()
		r.Hello = optionals.Some(hello)
		s.factory.inspector.dryRun(&r, hello)
	}

	s.factory.inspector.opts.Logger.Debug("flow inspected",
		zap.String("flow", s.flow),
		zap.String("id", s.id.String()),
		zap.Bool("parsed", r.Hello.IsSome()),
		zap.Strings("offered_protocols", offeredProtocols(r.Hello)),
		zap.Strings("candidate_protocols", r.CandidateProtocols.AsSlice()),
		zap.Error(r.Err))

	select {
	case s.factory.out <- r:
	case <-s.factory.ctx.Done():
	}
}

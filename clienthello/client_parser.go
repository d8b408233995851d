package clienthello

import (
	"github.com/pkg/errors"

	"github.com/mel2oo/go-alpn/cipher"
)

type parseState int

// Parse states, in wire order. Every state from stateClientVersion onwards
// lies inside the Client Hello body.
const (
	stateRecordType parseState = iota
	stateRecordVersion
	stateRecordLength
	stateHandshakeType
	stateHandshakeLength
	stateClientVersion
	stateRandom
	stateSessionIDLength
	stateSessionID
	stateCipherSuitesLength
	stateCipherSuite
	stateCompressionLength
	stateCompression
	stateExtensionsLength
	stateExtensionType
	stateExtensionLength
	stateExtensionBody
	stateALPNListLength
	stateALPNProtocolLength
	stateALPNProtocol
	stateDone
	stateFailed
)

// Parser decodes a single Client Hello from a byte stream that may arrive in
// arbitrarily small pieces. Feed it successive chunks until it reports
// completion. A Parser is single use and is not safe for concurrent use.
type Parser struct {
	catalog cipher.Catalog

	state parseState

	// The field currently being read: bytes still needed, and the big-endian
	// value accumulated so far for integer fields.
	need int
	acc  uint32

	// Bytes left in each enclosing region. Each must reach exactly zero where
	// its region ends.
	handshakeLeft  int
	ciphersLeft    int
	extensionsLeft int
	extensionLeft  int
	alpnLeft       int

	extensionType tlsExtensionID
	protocol      []byte

	consumed int64
	result   ParsedClientHello
	err      error
}

func NewParser(catalog cipher.Catalog) *Parser {
	return &Parser{
		catalog: catalog,
		state:   stateRecordType,
		need:    1,
	}
}

// Feed consumes as much of data as the Client Hello needs and reports whether
// the message has been fully parsed. Bytes after the end of the message are
// left unconsumed; see Consumed. After completion Feed returns true without
// consuming anything. After a failure Feed returns the same error forever.
func (p *Parser) Feed(data []byte) (done bool, err error) {
	for len(data) > 0 && p.state < stateDone {
		n, advanceErr := p.advance(data)
		p.consumed += int64(n)
		data = data[n:]
		if advanceErr != nil {
			p.state = stateFailed
			p.err = advanceErr
		}
	}
	return p.state == stateDone, p.err
}

// Returns the parsed Client Hello once Feed has reported completion.
func (p *Parser) Result() (ParsedClientHello, bool) {
	if p.state != stateDone {
		return ParsedClientHello{}, false
	}
	return p.result, true
}

// The number of input bytes that belong to the Client Hello seen so far.
func (p *Parser) Consumed() int64 {
	return p.consumed
}

// Reads up to p.need bytes of the current field, then runs the transition for
// the state if the field is complete.
func (p *Parser) advance(data []byte) (int, error) {
	n := min(len(data), p.need)
	switch p.state {
	case stateRecordVersion, stateRecordLength, stateRandom, stateSessionID, stateCompression, stateExtensionBody:
		// Opaque.
	case stateALPNProtocol:
		p.protocol = append(p.protocol, data[:n]...)
	default:
		for _, b := range data[:n] {
			p.acc = p.acc<<8 | uint32(b)
		}
	}
	p.need -= n

	if err := p.account(n); err != nil {
		return n, err
	}
	if p.need > 0 {
		return n, nil
	}
	return n, p.transition()
}

// Charges n bytes read in the current state against the enclosing regions.
func (p *Parser) account(n int) error {
	if p.state >= stateClientVersion {
		p.handshakeLeft -= n
		if p.handshakeLeft < 0 {
			return errors.Wrap(ErrMalformedHandshake, "Client Hello overruns its declared length")
		}
	}

	switch p.state {
	case stateCipherSuite:
		p.ciphersLeft -= n
	case stateExtensionType, stateExtensionLength:
		p.extensionsLeft -= n
	case stateExtensionBody, stateALPNListLength:
		p.extensionsLeft -= n
		p.extensionLeft -= n
	case stateALPNProtocolLength, stateALPNProtocol:
		p.extensionsLeft -= n
		p.extensionLeft -= n
		p.alpnLeft -= n
	}
	if p.extensionsLeft < 0 || p.extensionLeft < 0 || p.alpnLeft < 0 {
		return errors.Wrapf(ErrMalformedExtensions, "field overruns its enclosing region in state %d", p.state)
	}
	return nil
}

func (p *Parser) expect(state parseState, need int) {
	p.state = state
	p.need = need
	p.acc = 0
}

// Runs when the field for the current state is complete.
func (p *Parser) transition() error {
	switch p.state {
	case stateRecordType:
		if p.acc != recordTypeHandshake {
			return errors.Wrapf(ErrMalformedRecord, "record type 0x%02x", p.acc)
		}
		p.expect(stateRecordVersion, recordVersionLength_bytes)

	case stateRecordVersion:
		p.expect(stateRecordLength, recordLengthLength_bytes)

	case stateRecordLength:
		p.expect(stateHandshakeType, 1)

	case stateHandshakeType:
		if p.acc != handshakeTypeClientHello {
			return errors.Wrapf(ErrMalformedHandshake, "handshake type 0x%02x", p.acc)
		}
		p.expect(stateHandshakeLength, handshakeLengthLength_bytes)

	case stateHandshakeLength:
		p.handshakeLeft = int(p.acc)
		p.expect(stateClientVersion, clientVersionLength_bytes)

	case stateClientVersion:
		v, err := ParseTLSVersion(uint16(p.acc))
		if err != nil {
			return err
		}
		p.result.Version = v
		p.expect(stateRandom, clientRandomLength_bytes)

	case stateRandom:
		p.expect(stateSessionIDLength, 1)

	case stateSessionIDLength:
		if p.acc == 0 {
			p.expect(stateCipherSuitesLength, 2)
		} else {
			p.expect(stateSessionID, int(p.acc))
		}

	case stateSessionID:
		p.expect(stateCipherSuitesLength, 2)

	case stateCipherSuitesLength:
		if p.acc%cipherSuiteLength_bytes != 0 {
			return errors.Wrapf(ErrMalformedCipherSuites, "odd cipher suite list length %d", p.acc)
		}
		p.ciphersLeft = int(p.acc)
		if p.ciphersLeft == 0 {
			p.expect(stateCompressionLength, 1)
		} else {
			p.expect(stateCipherSuite, cipherSuiteLength_bytes)
		}

	case stateCipherSuite:
		// Codes the catalog does not know are dropped.
		if name, ok := p.catalog.Lookup(uint16(p.acc)).Get(); ok {
			p.result.CipherSuites = append(p.result.CipherSuites, name)
		}
		if p.ciphersLeft == 0 {
			p.expect(stateCompressionLength, 1)
		} else {
			p.expect(stateCipherSuite, cipherSuiteLength_bytes)
		}

	case stateCompressionLength:
		if p.acc == 0 {
			return p.endCompression()
		}
		p.expect(stateCompression, int(p.acc))

	case stateCompression:
		return p.endCompression()

	case stateExtensionsLength:
		p.extensionsLeft = int(p.acc)
		if p.extensionsLeft != p.handshakeLeft {
			return errors.Wrapf(ErrMalformedExtensions, "extensions length %d, but %d Client Hello bytes remain", p.extensionsLeft, p.handshakeLeft)
		}
		if p.extensionsLeft == 0 {
			return p.finish()
		}
		p.expect(stateExtensionType, 2)

	case stateExtensionType:
		p.extensionType = tlsExtensionID(p.acc)
		p.expect(stateExtensionLength, 2)

	case stateExtensionLength:
		p.extensionLeft = int(p.acc)
		if p.extensionLeft > p.extensionsLeft {
			return errors.Wrapf(ErrMalformedExtensions, "extension 0x%04x length %d exceeds the %d bytes left", uint16(p.extensionType), p.extensionLeft, p.extensionsLeft)
		}
		if p.extensionType == alpnExtensionID && p.extensionLeft < 2 {
			return errors.Wrapf(ErrMalformedExtensions, "ALPN extension of %d bytes has no list length", p.extensionLeft)
		}
		switch {
		case p.extensionLeft == 0:
			return p.endExtension()
		case p.extensionType == alpnExtensionID:
			p.expect(stateALPNListLength, 2)
		default:
			p.expect(stateExtensionBody, p.extensionLeft)
		}

	case stateExtensionBody:
		return p.endExtension()

	case stateALPNListLength:
		p.alpnLeft = int(p.acc)
		if p.alpnLeft != p.extensionLeft {
			return errors.Wrapf(ErrMalformedExtensions, "ALPN list length %d, but the extension holds %d", p.alpnLeft, p.extensionLeft)
		}
		if p.alpnLeft == 0 {
			return p.endExtension()
		}
		p.expect(stateALPNProtocolLength, 1)

	case stateALPNProtocolLength:
		length := int(p.acc)
		if length == 0 {
			return errors.Wrap(ErrMalformedExtensions, "empty ALPN protocol name")
		}
		if length > p.alpnLeft {
			return errors.Wrapf(ErrMalformedExtensions, "ALPN protocol length %d exceeds the %d bytes left", length, p.alpnLeft)
		}
		p.protocol = make([]byte, 0, length)
		p.expect(stateALPNProtocol, length)

	case stateALPNProtocol:
		p.result.Protocols = append(p.result.Protocols, string(p.protocol))
		p.protocol = nil
		if p.alpnLeft == 0 {
			return p.endExtension()
		}
		p.expect(stateALPNProtocolLength, 1)

	default:
		return errors.Errorf("clienthello: no transition from state %d", p.state)
	}
	return nil
}

// A Client Hello whose body ends right after the compression methods has no
// extensions block.
func (p *Parser) endCompression() error {
	if p.handshakeLeft == 0 {
		return p.finish()
	}
	p.expect(stateExtensionsLength, 2)
	return nil
}

func (p *Parser) endExtension() error {
	p.extensionType = 0
	if p.extensionsLeft == 0 {
		return p.finish()
	}
	p.expect(stateExtensionType, 2)
	return nil
}

func (p *Parser) finish() error {
	if p.handshakeLeft != 0 {
		return errors.Wrapf(ErrMalformedHandshake, "%d trailing Client Hello bytes", p.handshakeLeft)
	}
	p.expect(stateDone, 0)
	return nil
}

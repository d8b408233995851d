package clienthello

// The result of checking whether a byte stream starts with a Client Hello.
type AcceptDecision int

const (
	Reject AcceptDecision = iota
	NeedMoreData
	Accept
)

func (d AcceptDecision) String() string {
	switch d {
	case Reject:
		return "Reject"
	case NeedMoreData:
		return "NeedMoreData"
	case Accept:
		return "Accept"
	default:
		return "unknown"
	}
}

var clientHelloHandshakeBytes = []byte{
	// Record header (5 bytes)
	0x16,       // handshake record
	0x03, 0x00, // protocol version 3.x
	0x00, 0x00, // handshake payload size (ignored)

	// Handshake header (4 bytes)
	0x01,             // Client Hello
	0x00, 0x00, 0x00, // Client Hello payload size (ignored)

	// Client Version (2 bytes)
	0x03, 0x00, // protocol version 3.x
}

var clientHelloHandshakeMask = []byte{
	// Record header (5 bytes)
	0xff,       // handshake record
	0xff, 0x00, // major protocol version only
	0x00, 0x00, // handshake payload size (ignored)

	// Handshake header (4 bytes)
	0xff,             // Client Hello
	0x00, 0x00, 0x00, // Client Hello payload size (ignored)

	// Client Version (2 bytes)
	0xff, 0x00, // major protocol version only
}

// Decides whether input starts with a Client Hello. On Reject, discardFront is
// the number of bytes that can be dropped, which is all of input. Once isEnd is
// set no more data will arrive, so NeedMoreData becomes Reject.
func Accepts(input []byte, isEnd bool) (decision AcceptDecision, discardFront int64) {
	decision, discardFront = accepts(input)

	if decision == NeedMoreData && isEnd {
		decision = Reject
		discardFront = int64(len(input))
	}

	return decision, discardFront
}

func accepts(input []byte) (decision AcceptDecision, discardFront int64) {
	// Reject as early as possible on the bytes we do have.
	for idx, b := range input {
		if idx >= len(clientHelloHandshakeBytes) {
			break
		}
		if b&clientHelloHandshakeMask[idx] != clientHelloHandshakeBytes[idx] {
			return Reject, int64(len(input))
		}
	}

	if len(input) < minTLSClientHelloLength_bytes {
		return NeedMoreData, 0
	}
	return Accept, 0
}

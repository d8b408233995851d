package clienthello

const (
	// Minimum number of bytes needed before we can determine whether we can
	// accept some bytes as a Client Hello.
	//
	// We read through to the client version, to have better assurance that we
	// don't accidentally match against something else.
	//
	//   Record header (5 bytes)
	//     16 - handshake record
	//     03 XX - record protocol version
	//     XX XX - bytes of handshake message follows
	//
	//   Handshake header (4 bytes)
	//     01 - Client Hello
	//     XX XX XX - bytes of Client Hello follows
	//
	//   Client Version (2 bytes)
	//     03 XX - protocol version
	minTLSClientHelloLength_bytes = 11

	recordTypeHandshake      = 0x16
	handshakeTypeClientHello = 0x01

	// version(2) + length(2), after the record type byte
	recordVersionLength_bytes = 2
	recordLengthLength_bytes  = 2

	handshakeLengthLength_bytes = 3
	clientVersionLength_bytes   = 2

	// gmt_unix_time(4) + random_bytes(28)
	clientRandomLength_bytes = 32

	cipherSuiteLength_bytes = 2
)

type tlsExtensionID uint16

// TLS extension numbers
const (
	alpnExtensionID tlsExtensionID = 0x0010
)

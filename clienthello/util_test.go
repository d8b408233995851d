package clienthello

import (
	"encoding/hex"
	"testing"
)

// Bytes captured via Wireshark from a browser. Offers 11 cipher suites and the
// ALPN protocols h2, spdy/3.1 and http/1.1, followed by two more extensions.
const capturedClientHelloHex = "16030100b8010000b40303b18da832af81c989018f2f82b8ed7d6d2e386871a64c2dc9efef77e124a5a09f000016c02bc02fc00ac009c013c01400330039002f0035000a0100007500000010000e00000b776562746964652e636f6d00170000ff01000100000a00080006001700180019000b00020100002300003374000000100017001502683208737064792f332e3108687474702f312e31000500050100000000000d001600140401050106010201040305030603020304020202"

func capturedClientHello(t testing.TB) []byte {
	bs, err := hex.DecodeString(capturedClientHelloHex)
	if err != nil {
		t.Fatal(err)
	}
	return bs
}

type testExtension struct {
	typ  uint16
	body []byte
}

func alpnExtension(protocols ...string) testExtension {
	var list []byte
	for _, p := range protocols {
		list = append(list, byte(len(p)))
		list = append(list, p...)
	}
	return testExtension{
		typ:  uint16(alpnExtensionID),
		body: append(uint16Bytes(len(list)), list...),
	}
}

// Builds Client Hello records with correct length fields.
type testHello struct {
	version     uint16
	sessionID   []byte
	ciphers     []uint16
	compression []byte

	// Omit the extensions block entirely, as SSLv3 clients do.
	noExtensions bool
	extensions   []testExtension
}

func newTestHello(extensions ...testExtension) testHello {
	return testHello{
		version:     0x0303,
		ciphers:     []uint16{0xc02f, 0x009c},
		compression: []byte{0x00},
		extensions:  extensions,
	}
}

func uint16Bytes(v int) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

func (h testHello) extensionBytes() []byte {
	var rv []byte
	for _, e := range h.extensions {
		rv = append(rv, uint16Bytes(int(e.typ))...)
		rv = append(rv, uint16Bytes(len(e.body))...)
		rv = append(rv, e.body...)
	}
	return rv
}

func (h testHello) bytes() []byte {
	body := uint16Bytes(int(h.version))
	body = append(body, make([]byte, clientRandomLength_bytes)...)

	body = append(body, byte(len(h.sessionID)))
	body = append(body, h.sessionID...)

	body = append(body, uint16Bytes(2*len(h.ciphers))...)
	for _, c := range h.ciphers {
		body = append(body, uint16Bytes(int(c))...)
	}

	body = append(body, byte(len(h.compression)))
	body = append(body, h.compression...)

	if !h.noExtensions {
		ext := h.extensionBytes()
		body = append(body, uint16Bytes(len(ext))...)
		body = append(body, ext...)
	}

	handshake := []byte{handshakeTypeClientHello, byte(len(body) >> 16), byte(len(body) >> 8), byte(len(body))}
	handshake = append(handshake, body...)

	record := []byte{recordTypeHandshake, 0x03, 0x01}
	record = append(record, uint16Bytes(len(handshake))...)
	return append(record, handshake...)
}

// Offset of the extensions length field in the output of bytes().
func (h testHello) extensionsLengthOffset() int {
	return 5 + 4 + 2 + clientRandomLength_bytes + 1 + len(h.sessionID) + 2 + 2*len(h.ciphers) + 1 + len(h.compression)
}

// Offset of the 3-byte handshake length in the output of bytes().
const handshakeLengthOffset = 6

func putUint24(bs []byte, offset int, v int) {
	bs[offset] = byte(v >> 16)
	bs[offset+1] = byte(v >> 8)
	bs[offset+2] = byte(v)
}

func putUint16(bs []byte, offset int, v int) {
	bs[offset] = byte(v >> 8)
	bs[offset+1] = byte(v)
}

func getUint24(bs []byte, offset int) int {
	return int(bs[offset])<<16 | int(bs[offset+1])<<8 | int(bs[offset+2])
}

func getUint16(bs []byte, offset int) int {
	return int(bs[offset])<<8 | int(bs[offset+1])
}

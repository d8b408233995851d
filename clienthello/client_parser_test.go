package clienthello

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel2oo/go-alpn/cipher"
)

var testCatalog = cipher.Table{
	0xc02f: "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	0x009c: "TLS_RSA_WITH_AES_128_GCM_SHA256",
}

// Feeds each chunk in turn and returns the parser's final answer.
func parseChunks(catalog cipher.Catalog, chunks ...[]byte) (ParsedClientHello, bool, error) {
	p := NewParser(catalog)
	var done bool
	var err error
	for _, c := range chunks {
		done, err = p.Feed(c)
		if err != nil {
			return ParsedClientHello{}, false, err
		}
	}
	result, ok := p.Result()
	if done != ok {
		return result, false, errors.Errorf("Feed reported done=%v but Result reported %v", done, ok)
	}
	return result, done, nil
}

func TestParseCapturedClientHello(t *testing.T) {
	input := capturedClientHello(t)

	p := NewParser(cipher.Default())
	done, err := p.Feed(input)
	require.NoError(t, err)
	require.True(t, done)

	hello, ok := p.Result()
	require.True(t, ok)

	assert.Equal(t, TLSv1_2, hello.Version)
	assert.Equal(t, "TLSv1.2", hello.Version.String())
	assert.Equal(t, []string{"h2", "spdy/3.1", "http/1.1"}, hello.Protocols)
	assert.Equal(t, []string{
		"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
		"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		"TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA",
		"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA",
		"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
		"TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
		"TLS_DHE_RSA_WITH_AES_128_CBC_SHA",
		"TLS_DHE_RSA_WITH_AES_256_CBC_SHA",
		"TLS_RSA_WITH_AES_128_CBC_SHA",
		"TLS_RSA_WITH_AES_256_CBC_SHA",
		"TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	}, hello.CipherSuites)
	assert.Equal(t, int64(len(input)), p.Consumed())
}

// Splitting the input anywhere must not change the result.
func TestChunkingInvariance(t *testing.T) {
	inputs := map[string][]byte{
		"captured":      capturedClientHello(t),
		"alpn last":     newTestHello(testExtension{typ: 0x0000, body: []byte{1, 2, 3}}, alpnExtension("h2", "http/1.1")).bytes(),
		"alpn first":    newTestHello(alpnExtension("http/1.1"), testExtension{typ: 0x000b, body: []byte{1, 0}}).bytes(),
		"no extensions": testHello{version: 0x0300, ciphers: []uint16{0x009c}, compression: []byte{0}, noExtensions: true}.bytes(),
	}

	for name, input := range inputs {
		expected, done, err := parseChunks(cipher.Default(), input)
		require.NoError(t, err, name)
		require.True(t, done, name)

		// Every split into two and three pieces.
		for i := 0; i <= len(input); i++ {
			actual, done, err := parseChunks(cipher.Default(), input[:i], input[i:])
			require.NoError(t, err, "%s split at %d", name, i)
			require.True(t, done, "%s split at %d", name, i)
			if diff := cmp.Diff(expected, actual); diff != "" {
				t.Fatalf("%s split at %d: found unexpected diff:\n%s", name, i, diff)
			}

			for j := i; j <= len(input); j++ {
				actual, done, err := parseChunks(cipher.Default(), input[:i], input[i:j], input[j:])
				require.NoError(t, err, "%s split at %d, %d", name, i, j)
				require.True(t, done, "%s split at %d, %d", name, i, j)
				if diff := cmp.Diff(expected, actual); diff != "" {
					t.Fatalf("%s split at %d, %d: found unexpected diff:\n%s", name, i, j, diff)
				}
			}
		}

		// One byte at a time.
		chunks := make([][]byte, len(input))
		for i := range input {
			chunks[i] = input[i : i+1]
		}
		actual, done, err := parseChunks(cipher.Default(), chunks...)
		require.NoError(t, err, name)
		require.True(t, done, name)
		if diff := cmp.Diff(expected, actual); diff != "" {
			t.Fatalf("%s byte at a time: found unexpected diff:\n%s", name, diff)
		}

		// Random splits.
		rng := rand.New(rand.NewSource(1))
		for trial := 0; trial < 200; trial++ {
			var chunks [][]byte
			rest := input
			for len(rest) > 0 {
				n := rng.Intn(len(rest)) + 1
				chunks = append(chunks, rest[:n])
				rest = rest[n:]
			}
			actual, done, err := parseChunks(cipher.Default(), chunks...)
			require.NoError(t, err, name)
			require.True(t, done, name)
			if diff := cmp.Diff(expected, actual); diff != "" {
				t.Fatalf("%s random split %d: found unexpected diff:\n%s", name, trial, diff)
			}
		}
	}
}

func TestIncompleteInput(t *testing.T) {
	input := capturedClientHello(t)

	p := NewParser(cipher.Default())
	done, err := p.Feed(input[:len(input)-1])
	assert.NoError(t, err)
	assert.False(t, done)

	_, ok := p.Result()
	assert.False(t, ok)

	done, err = p.Feed(nil)
	assert.NoError(t, err)
	assert.False(t, done)

	done, err = p.Feed(input[len(input)-1:])
	assert.NoError(t, err)
	assert.True(t, done)
}

func TestTrailingBytesNotConsumed(t *testing.T) {
	input := capturedClientHello(t)
	trailing := []byte{0x14, 0x03, 0x03, 0x00, 0x01, 0x01}

	p := NewParser(cipher.Default())
	done, err := p.Feed(append(append([]byte{}, input...), trailing...))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, int64(len(input)), p.Consumed())

	// Completed parsers ignore further input.
	done, err = p.Feed(trailing)
	assert.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int64(len(input)), p.Consumed())
}

func TestALPNPosition(t *testing.T) {
	sni := testExtension{typ: 0x0000, body: []byte{0, 5, 0, 0, 2, 'a', 'b'}}
	padding := testExtension{typ: 0x0015, body: make([]byte, 7)}

	last, done, err := parseChunks(testCatalog, newTestHello(sni, alpnExtension("h2", "http/1.1")).bytes())
	require.NoError(t, err)
	require.True(t, done)

	middle, done, err := parseChunks(testCatalog, newTestHello(sni, alpnExtension("h2", "http/1.1"), padding).bytes())
	require.NoError(t, err)
	require.True(t, done)

	expected := ParsedClientHello{
		Version:      TLSv1_2,
		CipherSuites: []string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", "TLS_RSA_WITH_AES_128_GCM_SHA256"},
		Protocols:    []string{"h2", "http/1.1"},
	}
	assert.Equal(t, expected, last)
	assert.Equal(t, expected, middle)
}

func TestParseVariants(t *testing.T) {
	testCases := []struct {
		name     string
		hello    testHello
		expected ParsedClientHello
	}{
		{
			name: "session id and no ALPN",
			hello: testHello{
				version:     0x0301,
				sessionID:   []byte{1, 2, 3, 4, 5, 6, 7, 8},
				ciphers:     []uint16{0x009c},
				compression: []byte{0},
				extensions:  []testExtension{{typ: 0x0023}},
			},
			expected: ParsedClientHello{
				Version:      TLSv1,
				CipherSuites: []string{"TLS_RSA_WITH_AES_128_GCM_SHA256"},
			},
		},
		{
			name: "unknown ciphers dropped and duplicates kept",
			hello: testHello{
				version:     0x0302,
				ciphers:     []uint16{0x0a0a, 0xc02f, 0x1234, 0xc02f},
				compression: []byte{0},
				extensions:  []testExtension{alpnExtension("http/1.1")},
			},
			expected: ParsedClientHello{
				Version:      TLSv1_1,
				CipherSuites: []string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256", "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"},
				Protocols:    []string{"http/1.1"},
			},
		},
		{
			name: "no extensions block",
			hello: testHello{
				version:      0x0300,
				ciphers:      []uint16{0x009c},
				compression:  []byte{0},
				noExtensions: true,
			},
			expected: ParsedClientHello{
				Version:      SSLv3,
				CipherSuites: []string{"TLS_RSA_WITH_AES_128_GCM_SHA256"},
			},
		},
		{
			name: "empty extensions block",
			hello: testHello{
				version:     0x0303,
				ciphers:     []uint16{0xc02f},
				compression: []byte{0},
			},
			expected: ParsedClientHello{
				Version:      TLSv1_2,
				CipherSuites: []string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"},
			},
		},
		{
			name: "several compression methods",
			hello: testHello{
				version:     0x0303,
				ciphers:     []uint16{0xc02f},
				compression: []byte{1, 0},
				extensions:  []testExtension{alpnExtension("h2")},
			},
			expected: ParsedClientHello{
				Version:      TLSv1_2,
				CipherSuites: []string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"},
				Protocols:    []string{"h2"},
			},
		},
		{
			name: "empty ALPN protocol list",
			hello: testHello{
				version:     0x0303,
				ciphers:     []uint16{0xc02f},
				compression: []byte{0},
				extensions:  []testExtension{{typ: uint16(alpnExtensionID), body: []byte{0, 0}}, {typ: 0x0017}},
			},
			expected: ParsedClientHello{
				Version:      TLSv1_2,
				CipherSuites: []string{"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"},
			},
		},
	}

	for _, c := range testCases {
		actual, done, err := parseChunks(testCatalog, c.hello.bytes())
		require.NoError(t, err, c.name)
		require.True(t, done, c.name)
		if diff := cmp.Diff(c.expected, actual); diff != "" {
			t.Errorf("[%s] found unexpected diff:\n%s", c.name, diff)
		}
	}
}

func TestMalformedInput(t *testing.T) {
	valid := func() testHello {
		return newTestHello(testExtension{typ: 0x000a, body: []byte{0, 2, 0, 0x17}}, alpnExtension("h2", "http/1.1"))
	}

	testCases := []struct {
		name        string
		input       func() []byte
		expectedErr error
	}{
		{
			name: "not a handshake record",
			input: func() []byte {
				bs := valid().bytes()
				bs[0] = 0x17
				return bs
			},
			expectedErr: ErrMalformedRecord,
		},
		{
			name:        "plaintext HTTP",
			input:       func() []byte { return []byte("GET / HTTP/1.1\r\n\r\n") },
			expectedErr: ErrMalformedRecord,
		},
		{
			name: "server hello",
			input: func() []byte {
				bs := valid().bytes()
				bs[5] = 0x02
				return bs
			},
			expectedErr: ErrMalformedHandshake,
		},
		{
			name: "TLS 1.3 legacy version",
			input: func() []byte {
				h := valid()
				h.version = 0x0304
				return h.bytes()
			},
			expectedErr: ErrUnknownTLSVersion,
		},
		{
			name: "odd cipher suite length",
			input: func() []byte {
				bs := valid().bytes()
				offset := 5 + 4 + 2 + clientRandomLength_bytes + 1
				putUint16(bs, offset, 3)
				return bs
			},
			expectedErr: ErrMalformedCipherSuites,
		},
		{
			name: "extensions total does not match the message",
			input: func() []byte {
				h := valid()
				bs := h.bytes()
				offset := h.extensionsLengthOffset()
				putUint16(bs, offset, getUint16(bs, offset)+1)
				return bs
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "extension overruns the extensions total",
			input: func() []byte {
				h := valid()
				bs := h.bytes()
				// Length of the first extension.
				offset := h.extensionsLengthOffset() + 2 + 2
				putUint16(bs, offset, 0x0100)
				return bs
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "ALPN list shorter than the extension",
			input: func() []byte {
				alpn := alpnExtension("h2", "http/1.1")
				putUint16(alpn.body, 0, len(alpn.body)-3)
				return newTestHello(alpn).bytes()
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "ALPN protocol overruns the list",
			input: func() []byte {
				alpn := alpnExtension("h2", "http/1.1")
				alpn.body[2+1+2] = 9
				return newTestHello(alpn).bytes()
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "ALPN extension without a body",
			input: func() []byte {
				return newTestHello(testExtension{typ: uint16(alpnExtensionID)}).bytes()
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "ALPN extension with half a list length",
			input: func() []byte {
				return newTestHello(testExtension{typ: uint16(alpnExtensionID), body: []byte{0}}, testExtension{typ: 0x0017}).bytes()
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "empty ALPN protocol name",
			input: func() []byte {
				return newTestHello(alpnExtension("h2", "")).bytes()
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "trailing bytes inside the handshake",
			input: func() []byte {
				bs := valid().bytes()
				putUint24(bs, handshakeLengthOffset, getUint24(bs, handshakeLengthOffset)+2)
				return append(bs, 0x00, 0x00)
			},
			expectedErr: ErrMalformedExtensions,
		},
		{
			name: "handshake shorter than its fields",
			input: func() []byte {
				bs := valid().bytes()
				putUint24(bs, handshakeLengthOffset, 10)
				return bs
			},
			expectedErr: ErrMalformedHandshake,
		},
	}

	for _, c := range testCases {
		input := c.input()

		p := NewParser(testCatalog)
		done, err := p.Feed(input)
		assert.False(t, done, c.name)
		if assert.Error(t, err, c.name) {
			assert.True(t, errors.Is(err, c.expectedErr), "[%s] expected %v, got %v", c.name, c.expectedErr, err)
		}

		// Failures are permanent.
		done, again := p.Feed(valid().bytes())
		assert.False(t, done, c.name)
		assert.Equal(t, err, again, c.name)

		_, ok := p.Result()
		assert.False(t, ok, c.name)
	}
}

// An extensions total that leaves bytes over after the last extension must
// never be treated as a complete message.
func TestExtensionsTotalNotExhausted(t *testing.T) {
	h := newTestHello(alpnExtension("h2"))
	bs := h.bytes()

	// Claim three more extension bytes than are present, keeping the handshake
	// length consistent with the claim.
	offset := h.extensionsLengthOffset()
	putUint16(bs, offset, getUint16(bs, offset)+3)
	putUint24(bs, handshakeLengthOffset, getUint24(bs, handshakeLengthOffset)+3)
	bs = append(bs, 0x00, 0x15, 0x00)

	p := NewParser(testCatalog)
	done, err := p.Feed(bs)
	assert.NoError(t, err)
	assert.False(t, done, "a truncated extension header must not complete the message")

	// The rest of the extension header overruns the declared length.
	done, err = p.Feed([]byte{0x01})
	assert.False(t, done)
	assert.True(t, errors.Is(err, ErrMalformedHandshake), "got %v", err)
}

// Package cipher maps two-byte TLS cipher suite codes to their IANA names.
//
// The catalog is static data and incomplete: Client Hello parsing
// drops codes it does not know.
package cipher

import (
	"crypto/tls"

	"github.com/mel2oo/go-alpn/optionals"
)

type Catalog interface {
	// Returns the name of the cipher suite with the given wire code.
	Lookup(code uint16) optionals.Optional[string]
}

// A Table is a Catalog backed by a map from wire code to name.
type Table map[uint16]string

var _ Catalog = Table(nil)

func (t Table) Lookup(code uint16) optionals.Optional[string] {
	name, ok := t[code]
	return optionals.FromOK(name, ok)
}

// Reverse lookup of a cipher suite name.
func (t Table) Code(name string) (uint16, bool) {
	for code, n := range t {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

// Returns a new table holding the entries of t and others. Later tables win on
// conflicting codes.
func (t Table) Merge(others ...Table) Table {
	rv := make(Table, len(t))
	for code, name := range t {
		rv[code] = name
	}
	for _, other := range others {
		for code, name := range other {
			rv[code] = name
		}
	}
	return rv
}

// Builds a table from the suites implemented by crypto/tls, secure and
// insecure alike.
func FromCryptoTLS() Table {
	rv := Table{}
	for _, suites := range [][]*tls.CipherSuite{tls.CipherSuites(), tls.InsecureCipherSuites()} {
		for _, s := range suites {
			rv[s.ID] = s.Name
		}
	}
	return rv
}

var defaultTable = registeredSuites.Merge(FromCryptoTLS())

// The default catalog: everything crypto/tls implements plus common IANA
// registrations it does not. Must not be modified.
func Default() Table {
	return defaultTable
}

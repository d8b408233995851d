package clienthello

import (
	"github.com/pkg/errors"
)

// The protocol version a client offers in its Client Hello.
type TLSVersion uint16

const (
	SSLv3   TLSVersion = 0x0300
	TLSv1   TLSVersion = 0x0301
	TLSv1_1 TLSVersion = 0x0302
	TLSv1_2 TLSVersion = 0x0303
)

var versionNames = map[TLSVersion]string{
	SSLv3:   "SSLv3",
	TLSv1:   "TLSv1",
	TLSv1_1: "TLSv1.1",
	TLSv1_2: "TLSv1.2",
}

// Maps a wire version code to a TLSVersion. Codes outside the table fail with
// ErrUnknownTLSVersion.
func ParseTLSVersion(code uint16) (TLSVersion, error) {
	v := TLSVersion(code)
	if _, ok := versionNames[v]; !ok {
		return 0, errors.Wrapf(ErrUnknownTLSVersion, "version 0x%04x", code)
	}
	return v, nil
}

// Maps a version name, as returned by String, back to a TLSVersion.
func TLSVersionFromName(name string) (TLSVersion, error) {
	for v, n := range versionNames {
		if n == name {
			return v, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownTLSVersion, "version name %q", name)
}

func (v TLSVersion) String() string {
	if name, ok := versionNames[v]; ok {
		return name
	}
	return "unknown"
}

func (v TLSVersion) MarshalText() ([]byte, error) {
	if _, ok := versionNames[v]; !ok {
		return nil, errors.Wrapf(ErrUnknownTLSVersion, "version 0x%04x", uint16(v))
	}
	return []byte(v.String()), nil
}

func (v *TLSVersion) UnmarshalText(text []byte) error {
	parsed, err := TLSVersionFromName(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

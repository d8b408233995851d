package gid

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

var (
	baseBigInt = big.NewInt(62)
)

type ID interface {
	GetType() string
	GetUUID() uuid.UUID
	String() string
}

// Base ID structure. Embed this in your own IDs.
// This will implement part of the GID interface for you.
type baseID uuid.UUID

func (bid baseID) GetUUID() uuid.UUID {
	return uuid.UUID(bid)
}

func toText(gid ID) ([]byte, error) {
	return []byte(String(gid)), nil
}

func fromText(dst interface{}, txt []byte) error {
	return ParseIDAs(string(txt), dst)
}

func String(gid ID) string {
	return fmt.Sprintf("%s_%s", gid.GetType(), encodeUUID(gid.GetUUID()))
}

func assignTo(assigner ID, dstID interface{}) error {
	v := reflect.ValueOf(assigner)
	dst := reflect.ValueOf(dstID)

	if reflect.PointerTo(v.Type()) != dst.Type() {
		return errors.Errorf("mismatched assignment types, can not assign %v to %v", v.Type(), dst.Type())
	}
	dst.Elem().Set(v)
	return nil
}

func encodeUUID(u uuid.UUID) string {
	uuidBs := [16]byte(u)
	n := big.NewInt(0)
	n.SetBytes(uuidBs[:])

	destBs := make([]byte, 0, 22)
	for n.Cmp(big.NewInt(0)) > 0 {
		r := big.NewInt(0)
		r.Mod(n, baseBigInt)
		n = n.Div(n, baseBigInt)
		destBs = append([]byte{alphabet[r.Int64()]}, destBs...)
	}

	// Always 22 characters, the maximum length of an encoded UUID.
	return strings.Repeat("0", 22-len(destBs)) + string(destBs)
}

func decodeUUID(s string) (uuid.UUID, error) {
	var bigI big.Int
	for _, c := range []byte(s) {
		i := strings.IndexByte(alphabet, c)
		if i < 0 {
			return uuid.Nil, errors.Errorf("unexpected character %c in base62 literal", c)
		}
		bigI.Mul(&bigI, baseBigInt)
		bigI.Add(&bigI, big.NewInt(int64(i)))
	}

	uuidBytes := bigI.Bytes()
	if len(uuidBytes) > 16 {
		return uuid.Nil, errors.Errorf("cannot have more than 16 bytes of UUID")
	} else if len(uuidBytes) < 16 {
		// uuid.FromBytes wants exactly 16 bytes, zero padded at the front.
		tmp := make([]byte, 16)
		copy(tmp[16-len(uuidBytes):], uuidBytes)
		uuidBytes = tmp
	}

	return uuid.FromBytes(uuidBytes)
}

package gid

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	ConnectionTag  = "cxn"
	FlowTag        = "flw"
	NegotiationTag = "neg"
)

type tagToIDConstructor func(uuid.UUID) ID

var idConstructorMap = map[string]tagToIDConstructor{
	ConnectionTag:  func(ID uuid.UUID) ID { return NewConnectionID(ID) },
	FlowTag:        func(ID uuid.UUID) ID { return NewFlowID(ID) },
	NegotiationTag: func(ID uuid.UUID) ID { return NewNegotiationID(ID) },
}

func parseIDParts(str string) (string, uuid.UUID, error) {
	parts := strings.Split(str, "_")
	if len(parts) != 2 {
		return "", uuid.Nil, errors.New("invalid GID structure")
	}
	idPart, err := decodeUUID(parts[1])
	if err != nil {
		return "", uuid.Nil, errors.Wrap(err, "invalid unique id part of GID")
	}
	return parts[0], idPart, nil
}

func ParseID(str string) (ID, error) {
	tagName, uniquePart, err := parseIDParts(str)
	if err != nil {
		return nil, err
	}

	constructor := idConstructorMap[tagName]
	if constructor == nil {
		return nil, errors.Errorf("no known gid for tag %s", tagName)
	}

	return constructor(uniquePart), nil
}

func ParseIDAs(str string, destID interface{}) error {
	id, err := ParseID(str)
	if err != nil {
		return errors.Wrapf(err, "parse ID failed: %s", str)
	}
	return assignTo(id, destID)
}

// ConnectionIDs represent an accepted TLS connection.
type ConnectionID struct {
	baseID
}

func (ConnectionID) GetType() string {
	return ConnectionTag
}

func (id ConnectionID) String() string {
	return String(id)
}

func NewConnectionID(ID uuid.UUID) ConnectionID {
	return ConnectionID{baseID(ID)}
}

func GenerateConnectionID() ConnectionID {
	return NewConnectionID(uuid.New())
}

func (id ConnectionID) MarshalText() ([]byte, error) {
	return toText(id)
}

func (id *ConnectionID) UnmarshalText(data []byte) error {
	return fromText(id, data)
}

// FlowIDs represent a client-to-server TCP flow seen in a packet capture.
type FlowID struct {
	baseID
}

func (FlowID) GetType() string {
	return FlowTag
}

func (id FlowID) String() string {
	return String(id)
}

func NewFlowID(ID uuid.UUID) FlowID {
	return FlowID{baseID(ID)}
}

func GenerateFlowID() FlowID {
	return NewFlowID(uuid.New())
}

func (id FlowID) MarshalText() ([]byte, error) {
	return toText(id)
}

func (id *FlowID) UnmarshalText(data []byte) error {
	return fromText(id, data)
}

// NegotiationIDs represent one run of protocol negotiation.
type NegotiationID struct {
	baseID
}

func (NegotiationID) GetType() string {
	return NegotiationTag
}

func (id NegotiationID) String() string {
	return String(id)
}

func NewNegotiationID(ID uuid.UUID) NegotiationID {
	return NegotiationID{baseID(ID)}
}

func GenerateNegotiationID() NegotiationID {
	return NewNegotiationID(uuid.New())
}

func (id NegotiationID) MarshalText() ([]byte, error) {
	return toText(id)
}

func (id *NegotiationID) UnmarshalText(data []byte) error {
	return fromText(id, data)
}

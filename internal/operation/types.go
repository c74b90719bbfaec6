package operation

import (
	"fmt"
)

type Type string

const (
	TypeCreate  Type = "create"
	TypeUpdate  Type = "update"
	TypeRecover Type = "recover"
	TypeDelete  Type = "delete"
)

// ParseType validates a wire-level operation type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeCreate, TypeUpdate, TypeRecover, TypeDelete:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown operation type: %q", s)
}

// Timestamp is an operation's position in the anchor ledger's total order:
// the anchor's sequence position first, the operation's index within the
// anchored batch second.
type Timestamp struct {
	SequencePosition uint64
	IndexInBatch     uint64
}

// Earlier reports whether t is strictly earlier than other. Equal timestamps
// are not earlier than each other.
func (t Timestamp) Earlier(other Timestamp) bool {
	if t.SequencePosition != other.SequencePosition {
		return t.SequencePosition < other.SequencePosition
	}
	return t.IndexInBatch < other.IndexInBatch
}

func (t Timestamp) String() string {
	return fmt.Sprintf("(%d,%d)", t.SequencePosition, t.IndexInBatch)
}

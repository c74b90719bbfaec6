package operation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Batch is the CAS envelope for the operations anchored at one ledger
// position. Payloads are stored base64url-encoded so extraction reproduces
// the exact payload bytes, keeping payload hashes stable across the
// write/anchor/refetch round trip.
type Batch struct {
	Operations []string `json:"operations"`
}

func NewBatch(payloads [][]byte) *Batch {
	b := &Batch{Operations: make([]string, 0, len(payloads))}
	for _, p := range payloads {
		b.Operations = append(b.Operations, base64.RawURLEncoding.EncodeToString(p))
	}
	return b
}

func ParseBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	if len(b.Operations) == 0 {
		return nil, fmt.Errorf("batch contains no operations")
	}
	return &b, nil
}

func (b *Batch) Marshal() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch: %w", err)
	}
	return data, nil
}

// Operation returns the raw payload bytes at the given intra-batch index.
func (b *Batch) Operation(index uint64) ([]byte, error) {
	if index >= uint64(len(b.Operations)) {
		return nil, fmt.Errorf("operation index %d out of range (batch has %d operations)", index, len(b.Operations))
	}
	payload, err := base64.RawURLEncoding.DecodeString(b.Operations[index])
	if err != nil {
		return nil, fmt.Errorf("failed to decode operation %d: %w", index, err)
	}
	return payload, nil
}

func (b *Batch) Len() int {
	return len(b.Operations)
}

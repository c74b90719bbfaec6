package operation

import (
	"fmt"
)

// Anchored is one operation as observed from the ledger: the raw payload
// bytes plus the anchoring metadata the cache needs to index and refetch it.
type Anchored struct {
	// Buffer is the raw operation payload. The cache hashes it but never
	// stores it; payloads are refetched from the CAS on demand.
	Buffer []byte

	Type      Type
	Timestamp Timestamp

	// BatchHash addresses the anchored batch in the CAS.
	BatchHash string

	// PreviousVersionHash is the version this operation claims to supersede.
	// Set on every type except create.
	PreviousVersionHash string
}

// NewAnchored builds an anchored operation, rejecting malformed observations
// up front: every field the cache's apply path depends on must be present,
// and the previous-version reference must match the operation type.
func NewAnchored(buffer []byte, opType Type, ts Timestamp, batchHash, previousVersionHash string) (*Anchored, error) {
	if len(buffer) == 0 {
		return nil, fmt.Errorf("operation buffer is required")
	}
	if batchHash == "" {
		return nil, fmt.Errorf("batch hash is required")
	}
	if _, err := ParseType(string(opType)); err != nil {
		return nil, err
	}
	if opType == TypeCreate && previousVersionHash != "" {
		return nil, fmt.Errorf("create operation must not reference a previous version")
	}
	if opType != TypeCreate && previousVersionHash == "" {
		return nil, fmt.Errorf("%s operation requires a previous version reference", opType)
	}

	return &Anchored{
		Buffer:              buffer,
		Type:                opType,
		Timestamp:           ts,
		BatchHash:           batchHash,
		PreviousVersionHash: previousVersionHash,
	}, nil
}

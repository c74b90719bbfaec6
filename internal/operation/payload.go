package operation

import (
	"encoding/json"
	"fmt"
)

// Payload is the parsed form of an operation's raw bytes. The previous
// version back-reference lives here, inside the payload, not in the cache's
// forward index.
type Payload struct {
	Type                string          `json:"type"`
	DIDSuffix           string          `json:"didSuffix,omitempty"`
	PreviousVersionHash string          `json:"previousVersionHash,omitempty"`
	Document            json.RawMessage `json:"document,omitempty"`
	Patch               json.RawMessage `json:"patch,omitempty"`
}

// ParsePayload decodes and validates raw operation bytes.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse operation payload: %w", err)
	}

	opType, err := ParseType(p.Type)
	if err != nil {
		return nil, err
	}

	switch opType {
	case TypeCreate:
		if p.PreviousVersionHash != "" {
			return nil, fmt.Errorf("create payload must not reference a previous version")
		}
		if len(p.Document) == 0 {
			return nil, fmt.Errorf("create payload requires a document")
		}
	case TypeUpdate:
		if p.PreviousVersionHash == "" {
			return nil, fmt.Errorf("update payload requires a previous version reference")
		}
		if len(p.Patch) == 0 {
			return nil, fmt.Errorf("update payload requires a patch")
		}
	case TypeRecover:
		if p.PreviousVersionHash == "" {
			return nil, fmt.Errorf("recover payload requires a previous version reference")
		}
		if len(p.Document) == 0 {
			return nil, fmt.Errorf("recover payload requires a replacement document")
		}
	case TypeDelete:
		if p.PreviousVersionHash == "" {
			return nil, fmt.Errorf("delete payload requires a previous version reference")
		}
	}

	return &p, nil
}

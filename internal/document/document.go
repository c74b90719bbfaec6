package document

import (
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/didanchor/didanchor/internal/operation"
)

// Document is the JSON DID document produced by projecting an operation
// chain. The cache treats it as opaque.
type Document = json.RawMessage

// Tombstone is the projection of a delete operation.
var Tombstone = Document(`{"deactivated":true}`)

var ErrMalformedOperation = errors.New("malformed operation payload")

// Projector turns operation payloads into document states. Pure: it never
// touches the cache or the store.
type Projector struct{}

func NewProjector() *Projector {
	return &Projector{}
}

// ProjectCreate produces the genesis document embedded in a create payload.
func (p *Projector) ProjectCreate(payload []byte) (Document, error) {
	parsed, err := operation.ParsePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}
	if parsed.Type != string(operation.TypeCreate) {
		return nil, fmt.Errorf("%w: expected create, got %s", ErrMalformedOperation, parsed.Type)
	}
	return Document(parsed.Document), nil
}

// ProjectUpdate folds a non-create payload over the prior document state:
// updates apply an RFC 6902 patch, recovers replace the document wholesale,
// deletes project to a tombstone.
func (p *Projector) ProjectUpdate(prior Document, payload []byte) (Document, error) {
	parsed, err := operation.ParsePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOperation, err)
	}

	switch operation.Type(parsed.Type) {
	case operation.TypeUpdate:
		patch, err := jsonpatch.DecodePatch(parsed.Patch)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid patch: %v", ErrMalformedOperation, err)
		}
		next, err := patch.Apply(prior)
		if err != nil {
			return nil, fmt.Errorf("%w: patch does not apply: %v", ErrMalformedOperation, err)
		}
		return Document(next), nil
	case operation.TypeRecover:
		return Document(parsed.Document), nil
	case operation.TypeDelete:
		return Tombstone, nil
	default:
		return nil, fmt.Errorf("%w: %s is not an update-class operation", ErrMalformedOperation, parsed.Type)
	}
}

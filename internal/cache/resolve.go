package cache

import (
	"context"
	"fmt"

	"github.com/didanchor/didanchor/internal/document"
	"github.com/didanchor/didanchor/internal/operation"
)

// Resolution operations. All of them are read-only: a caller may abandon
// any of these mid-flight without leaving the cache inconsistent. Walking
// forward (Next, Last) is a pure index lookup; walking backward (Prev,
// First, Lookup) refetches payloads from the store, because the
// back-reference lives inside the payload, not in the forward index.

// Next returns the version that supersedes versionID, or ErrUnknown when
// versionID is the tip of its chain or not indexed at all.
func (e *Engine) Next(versionID string) (string, error) {
	next, ok := e.forward(versionID)
	if !ok {
		return "", ErrUnknown
	}
	return next, nil
}

// Last returns the tip of the chain reachable from versionID.
func (e *Engine) Last(versionID string) (string, error) {
	if _, ok := e.record(versionID); !ok {
		return "", ErrUnknown
	}
	for {
		next, ok := e.forward(versionID)
		if !ok {
			return versionID, nil
		}
		versionID = next
	}
}

// Prev returns the version that versionID supersedes. Requires a store
// round trip: the back-reference is read from the refetched payload.
// A create operation has no previous version.
func (e *Engine) Prev(ctx context.Context, versionID string) (string, error) {
	rec, ok := e.record(versionID)
	if !ok {
		return "", ErrUnknown
	}
	if rec.Type == operation.TypeCreate {
		return "", ErrUnknown
	}
	_, payload, err := e.fetch(ctx, rec)
	if err != nil {
		return "", err
	}
	if payload.PreviousVersionHash == "" {
		return "", ErrUnknown
	}
	return payload.PreviousVersionHash, nil
}

// First returns the genesis version identifier reachable from versionID,
// walking back until a create-kind record is found. Any missing link makes
// the whole chain unknown.
func (e *Engine) First(ctx context.Context, versionID string) (string, error) {
	for {
		rec, ok := e.record(versionID)
		if !ok {
			return "", ErrUnknown
		}
		if rec.Type == operation.TypeCreate {
			return versionID, nil
		}
		_, payload, err := e.fetch(ctx, rec)
		if err != nil {
			return "", err
		}
		if payload.PreviousVersionHash == "" {
			return "", ErrUnknown
		}
		versionID = payload.PreviousVersionHash
	}
}

// Lookup reconstructs the document state at exactly versionID by walking
// the operation chain back to its create and folding the payloads forward
// through the projector. Nothing is memoized: the store cost is linear in
// the version's update history, and callers needing materialized
// intermediate states must cache externally. An unindexed version returns
// ErrUnknown before any store access.
func (e *Engine) Lookup(ctx context.Context, versionID string) (document.Document, error) {
	// Requested version first, create last.
	var lineage [][]byte

	id := versionID
	for {
		rec, ok := e.record(id)
		if !ok {
			return nil, ErrUnknown
		}
		raw, payload, err := e.fetch(ctx, rec)
		if err != nil {
			return nil, err
		}
		lineage = append(lineage, raw)
		if rec.Type == operation.TypeCreate {
			break
		}
		if payload.PreviousVersionHash == "" {
			return nil, ErrUnknown
		}
		id = payload.PreviousVersionHash
	}

	doc, err := e.projector.ProjectCreate(lineage[len(lineage)-1])
	if err != nil {
		return nil, err
	}
	for i := len(lineage) - 2; i >= 0; i-- {
		doc, err = e.projector.ProjectUpdate(doc, lineage[i])
		if err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Resolve returns the current document for a DID, i.e. the document at the
// tip of the chain starting at the DID's genesis version. Unknown if the
// DID itself was never indexed.
func (e *Engine) Resolve(ctx context.Context, did string) (document.Document, error) {
	tip, err := e.Last(did)
	if err != nil {
		return nil, err
	}
	return e.Lookup(ctx, tip)
}

// fetch refetches one operation's payload: read the anchored batch from the
// store, pick the operation at the record's intra-batch index, parse it.
// Store and parse failures surface to the resolution call that triggered
// them; they never touch cache state.
func (e *Engine) fetch(ctx context.Context, rec OperationRecord) ([]byte, *operation.Payload, error) {
	data, err := e.store.Read(ctx, rec.BatchHash)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read batch %s: %w", rec.BatchHash, err)
	}
	batch, err := operation.ParseBatch(data)
	if err != nil {
		return nil, nil, fmt.Errorf("batch %s: %w", rec.BatchHash, err)
	}
	raw, err := batch.Operation(rec.Timestamp.IndexInBatch)
	if err != nil {
		return nil, nil, fmt.Errorf("batch %s: %w", rec.BatchHash, err)
	}
	payload, err := operation.ParsePayload(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("batch %s: %w", rec.BatchHash, err)
	}
	return raw, payload, nil
}

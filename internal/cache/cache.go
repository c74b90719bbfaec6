package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/didanchor/didanchor/internal/document"
	"github.com/didanchor/didanchor/internal/hash"
	"github.com/didanchor/didanchor/internal/operation"
)

// ErrUnknown marks an identifier the cache cannot resolve: either it was
// never indexed, or a link in its version chain is missing. A broken link
// anywhere makes every downstream query on that chain unknown rather than
// partially correct.
var ErrUnknown = errors.New("unknown version")

// Store fetches anchored batches from the content-addressable store.
type Store interface {
	Read(ctx context.Context, batchHash string) ([]byte, error)
}

// Projector turns operation payloads into document states.
type Projector interface {
	ProjectCreate(payload []byte) (document.Document, error)
	ProjectUpdate(prior document.Document, payload []byte) (document.Document, error)
}

// OperationRecord is the minimal metadata kept per distinct operation
// content hash: enough to order it and refetch its payload. The payload
// itself is never stored.
type OperationRecord struct {
	Timestamp operation.Timestamp
	BatchHash string
	Type      operation.Type
}

// Transaction records the last anchor the ledger observer fed through the
// cache. Bookkeeping only; apply, rollback and resolution never read it.
type Transaction struct {
	SequencePosition uint64
	AnchorHash       string
	TransactionHash  string
}

// Engine is the replayable version-chain cache. It owns two keyed maps:
//
//	index: operation content hash -> OperationRecord
//	chain: previous version hash  -> superseding operation hash
//
// An operation's content hash doubles as the version identifier of the
// document state it produces; resolving a version is resolving the
// operation chain that leads to it. Apply and Rollback are the only
// mutators and must be serialized by the caller (the ledger observer feeds
// one anchor at a time); resolution operations only read.
type Engine struct {
	mu    sync.RWMutex
	index map[string]OperationRecord
	chain map[string]string

	store     Store
	projector Projector

	lastProcessed *Transaction
}

func NewEngine(store Store, projector Projector) *Engine {
	return &Engine{
		index:     make(map[string]OperationRecord),
		chain:     make(map[string]string),
		store:     store,
		projector: projector,
	}
}

// Apply indexes one anchored operation and returns the version identifier
// it produces. It returns "" (and no error) for the two routine rejections
// of ledger replay: a duplicate sighting of operation content already
// indexed at an equal-or-earlier timestamp. A losing fork claim still
// returns its hash; only its chain mapping is refused. Errors are reserved
// for malformed input, which indicates a broken upstream observation.
//
// Tie-break rule: a candidate displaces an existing index entry or chain
// mapping only when it is strictly earlier in the ledger's total order.
// This makes Apply idempotent under resubmission and order-insensitive
// during catch-up, while keeping the earliest-anchored operation
// authoritative for any contested version.
func (e *Engine) Apply(op *operation.Anchored) (string, error) {
	if op == nil {
		return "", fmt.Errorf("nil operation")
	}
	if len(op.Buffer) == 0 {
		return "", fmt.Errorf("operation buffer is required")
	}
	if op.BatchHash == "" {
		return "", fmt.Errorf("batch hash is required")
	}
	if op.Type != operation.TypeCreate && op.PreviousVersionHash == "" {
		return "", fmt.Errorf("%s operation requires a previous version reference", op.Type)
	}

	opHash := hash.Compute(op.Buffer)
	candidate := OperationRecord{
		Timestamp: op.Timestamp,
		BatchHash: op.BatchHash,
		Type:      op.Type,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.index[opHash]; ok && !candidate.Timestamp.Earlier(existing.Timestamp) {
		// Earliest sighting of this content wins; later duplicates are
		// dropped without touching the index.
		return "", nil
	}
	e.index[opHash] = candidate

	if op.PreviousVersionHash != "" {
		if rivalHash, ok := e.chain[op.PreviousVersionHash]; ok && rivalHash != opHash {
			if rival, ok := e.index[rivalHash]; ok && !candidate.Timestamp.Earlier(rival.Timestamp) {
				// The previous version is already claimed by an operation
				// anchored earlier. The candidate stays indexed but becomes
				// an orphaned fork.
				return opHash, nil
			}
		}
		e.chain[op.PreviousVersionHash] = opHash
	}

	return opHash, nil
}

// Rollback forgets everything anchored above the given ledger position,
// used when the observer detects the ledger reorganized. Full scan over
// both maps; linear in cache size, correct for any threshold.
func (e *Engine) Rollback(sequencePosition uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for opHash, rec := range e.index {
		if rec.Timestamp.SequencePosition > sequencePosition {
			delete(e.index, opHash)
		}
	}

	for prev, next := range e.chain {
		rec, ok := e.index[next]
		if !ok || rec.Timestamp.SequencePosition > sequencePosition {
			delete(e.chain, prev)
		}
	}

	if e.lastProcessed != nil && e.lastProcessed.SequencePosition > sequencePosition {
		e.lastProcessed = nil
	}
}

// SetLastProcessed records replay progress on behalf of the observer.
func (e *Engine) SetLastProcessed(txn *Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastProcessed = txn
}

// LastProcessed returns the most recent anchor fed through Apply, or nil
// before any replay.
func (e *Engine) LastProcessed() *Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastProcessed
}

// Size returns the number of indexed operations.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.index)
}

func (e *Engine) record(versionID string) (OperationRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.index[versionID]
	return rec, ok
}

func (e *Engine) forward(versionID string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	next, ok := e.chain[versionID]
	return next, ok
}

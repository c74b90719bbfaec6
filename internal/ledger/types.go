package ledger

import (
	"context"
	"fmt"
	"time"
)

// Transaction is one anchor in the external ordered ledger: a sequence
// position, the CAS hash of the operation batch anchored there, and the
// ledger's own hash for the transaction, used to detect reorganizations.
type Transaction struct {
	SequencePosition uint64
	AnchorHash       string
	TransactionHash  string
	AnchoredAt       time.Time
}

// Reader observes the anchor ledger.
type Reader interface {
	// Since returns all transactions strictly after the given position, in
	// increasing position order.
	Since(ctx context.Context, position uint64) ([]Transaction, error)

	// At returns the transaction at exactly the given position, or nil if
	// the canonical ledger no longer has one there.
	At(ctx context.Context, position uint64) (*Transaction, error)
}

// TransactionHandler consumes observed anchors in ledger order.
type TransactionHandler interface {
	HandleTransaction(ctx context.Context, txn *Transaction) error

	// HandleRollback is invoked when the ledger reorganized: everything
	// above the given position must be forgotten.
	HandleRollback(ctx context.Context, position uint64) error
}

// ReorgError describes a detected ledger reorganization.
type ReorgError struct {
	Position     uint64
	ExpectedHash string
	ObservedHash string
}

func (e *ReorgError) Error() string {
	if e.ObservedHash == "" {
		return fmt.Sprintf("LEDGER REORGANIZED: transaction at position %d disappeared (was %s)",
			e.Position, e.ExpectedHash)
	}
	return fmt.Sprintf("LEDGER REORGANIZED: transaction at position %d changed from %s to %s",
		e.Position, e.ExpectedHash, e.ObservedHash)
}

func IsReorgError(err error) bool {
	_, ok := err.(*ReorgError)
	return ok
}

package ledger

import (
	"context"
	"fmt"

	"github.com/didanchor/didanchor/internal/cache"
	"github.com/didanchor/didanchor/internal/operation"
)

// BatchApplier feeds anchored batches into the version-chain cache: it
// fetches the batch the transaction anchors, parses each payload, and
// applies the operations with (position, index) timestamps.
type BatchApplier struct {
	store  cache.Store
	engine *cache.Engine
}

func NewBatchApplier(store cache.Store, engine *cache.Engine) *BatchApplier {
	return &BatchApplier{
		store:  store,
		engine: engine,
	}
}

func (a *BatchApplier) HandleTransaction(ctx context.Context, txn *Transaction) error {
	data, err := a.store.Read(ctx, txn.AnchorHash)
	if err != nil {
		return fmt.Errorf("failed to fetch batch %s: %w", txn.AnchorHash, err)
	}

	batch, err := operation.ParseBatch(data)
	if err != nil {
		return fmt.Errorf("batch %s: %w", txn.AnchorHash, err)
	}

	for i := 0; i < batch.Len(); i++ {
		raw, err := batch.Operation(uint64(i))
		if err != nil {
			return fmt.Errorf("batch %s: %w", txn.AnchorHash, err)
		}

		payload, err := operation.ParsePayload(raw)
		if err != nil {
			// A malformed operation inside an anchored batch will never
			// become valid on retry; skip it and keep the batch going.
			fmt.Printf("Skipping malformed operation %d in batch %s: %v\n", i, txn.AnchorHash, err)
			continue
		}

		ts := operation.Timestamp{
			SequencePosition: txn.SequencePosition,
			IndexInBatch:     uint64(i),
		}
		op, err := operation.NewAnchored(raw, operation.Type(payload.Type), ts, txn.AnchorHash, payload.PreviousVersionHash)
		if err != nil {
			fmt.Printf("Skipping invalid operation %d in batch %s: %v\n", i, txn.AnchorHash, err)
			continue
		}

		if _, err := a.engine.Apply(op); err != nil {
			return fmt.Errorf("failed to apply operation %d in batch %s: %w", i, txn.AnchorHash, err)
		}
	}

	a.engine.SetLastProcessed(&cache.Transaction{
		SequencePosition: txn.SequencePosition,
		AnchorHash:       txn.AnchorHash,
		TransactionHash:  txn.TransactionHash,
	})

	return nil
}

func (a *BatchApplier) HandleRollback(ctx context.Context, position uint64) error {
	a.engine.Rollback(position)
	return nil
}

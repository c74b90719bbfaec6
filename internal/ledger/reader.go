package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PGReader reads the anchor ledger from a PostgreSQL table:
//
//	CREATE TABLE anchors (
//	    position    BIGINT PRIMARY KEY,
//	    anchor_hash TEXT NOT NULL,
//	    txn_hash    TEXT NOT NULL,
//	    anchored_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// Plain polling queries rather than logical replication: reorg detection
// needs to re-read previously observed positions, which a WAL stream
// cannot serve.
type PGReader struct {
	conn *pgx.Conn
}

func NewPGReader(ctx context.Context, connString string) (*PGReader, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	return &PGReader{conn: conn}, nil
}

func (r *PGReader) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PGReader) Since(ctx context.Context, position uint64) ([]Transaction, error) {
	rows, err := r.conn.Query(ctx,
		"SELECT position, anchor_hash, txn_hash, anchored_at FROM anchors WHERE position > $1 ORDER BY position",
		position,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query anchors: %w", err)
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		var txn Transaction
		if err := rows.Scan(&txn.SequencePosition, &txn.AnchorHash, &txn.TransactionHash, &txn.AnchoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan anchor row: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read anchor rows: %w", err)
	}

	return txns, nil
}

func (r *PGReader) At(ctx context.Context, position uint64) (*Transaction, error) {
	var txn Transaction
	err := r.conn.QueryRow(ctx,
		"SELECT position, anchor_hash, txn_hash, anchored_at FROM anchors WHERE position = $1",
		position,
	).Scan(&txn.SequencePosition, &txn.AnchorHash, &txn.TransactionHash, &txn.AnchoredAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query anchor at %d: %w", position, err)
	}

	return &txn, nil
}

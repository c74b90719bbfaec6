package ledger

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"
)

type mockReader struct {
	txns map[uint64]Transaction
}

func (r *mockReader) Since(ctx context.Context, position uint64) ([]Transaction, error) {
	var positions []uint64
	for pos := range r.txns {
		if pos > position {
			positions = append(positions, pos)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	var result []Transaction
	for _, pos := range positions {
		result = append(result, r.txns[pos])
	}
	return result, nil
}

func (r *mockReader) At(ctx context.Context, position uint64) (*Transaction, error) {
	txn, ok := r.txns[position]
	if !ok {
		return nil, nil
	}
	return &txn, nil
}

func (r *mockReader) anchor(position uint64, anchorHash, txnHash string) {
	r.txns[position] = Transaction{
		SequencePosition: position,
		AnchorHash:       anchorHash,
		TransactionHash:  txnHash,
		AnchoredAt:       time.Now(),
	}
}

type mockHandler struct {
	transactions []Transaction
	rollbacks    []uint64
	failNext     bool
}

func (h *mockHandler) HandleTransaction(ctx context.Context, txn *Transaction) error {
	if h.failNext {
		return fmt.Errorf("handler exploded")
	}
	h.transactions = append(h.transactions, *txn)
	return nil
}

func (h *mockHandler) HandleRollback(ctx context.Context, position uint64) error {
	h.rollbacks = append(h.rollbacks, position)
	return nil
}

func TestNewManager(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	manager := NewManager(reader, time.Second)

	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if len(manager.handlers) != 0 {
		t.Error("Handlers should be empty initially")
	}
	if manager.Cursor() != nil {
		t.Error("Cursor should be nil before any sync")
	}
}

func TestManagerAddHandler(t *testing.T) {
	manager := NewManager(&mockReader{txns: make(map[uint64]Transaction)}, time.Second)

	manager.AddHandler(&mockHandler{})
	manager.AddHandler(&mockHandler{})

	if len(manager.handlers) != 2 {
		t.Errorf("Expected 2 handlers, got %d", len(manager.handlers))
	}
}

func TestManagerSyncCatchUp(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	reader.anchor(1, "batch1", "txn1")
	reader.anchor(2, "batch2", "txn2")
	reader.anchor(3, "batch3", "txn3")

	manager := NewManager(reader, time.Second)
	handler := &mockHandler{}
	manager.AddHandler(handler)

	ctx := context.Background()
	if err := manager.Sync(ctx); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if len(handler.transactions) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(handler.transactions))
	}
	for i, txn := range handler.transactions {
		if txn.SequencePosition != uint64(i+1) {
			t.Errorf("Transactions out of order: position %d at index %d", txn.SequencePosition, i)
		}
	}

	cursor := manager.Cursor()
	if cursor == nil || cursor.SequencePosition != 3 {
		t.Errorf("Expected cursor at position 3, got %+v", cursor)
	}

	// Nothing new: a second round is a no-op.
	if err := manager.Sync(ctx); err != nil {
		t.Fatalf("Second sync failed: %v", err)
	}
	if len(handler.transactions) != 3 {
		t.Errorf("Second sync re-delivered transactions: %d", len(handler.transactions))
	}
}

func TestManagerSyncIncremental(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	reader.anchor(1, "batch1", "txn1")

	manager := NewManager(reader, time.Second)
	handler := &mockHandler{}
	manager.AddHandler(handler)

	ctx := context.Background()
	if err := manager.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	reader.anchor(2, "batch2", "txn2")
	if err := manager.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	if len(handler.transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(handler.transactions))
	}
	if handler.transactions[1].AnchorHash != "batch2" {
		t.Error("New anchor not delivered")
	}
}

func TestManagerReorg(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	reader.anchor(1, "batch1", "txn1")
	reader.anchor(2, "batch2", "txn2")
	reader.anchor(3, "batch3", "txn3")

	manager := NewManager(reader, time.Second)
	handler := &mockHandler{}
	manager.AddHandler(handler)

	ctx := context.Background()
	if err := manager.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	// The ledger forks: position 3 is replaced by a different transaction.
	reader.anchor(3, "batch3b", "txn3b")

	if err := manager.Sync(ctx); err != nil {
		t.Fatalf("Sync after reorg failed: %v", err)
	}

	if len(handler.rollbacks) != 1 || handler.rollbacks[0] != 2 {
		t.Fatalf("Expected rollback to position 2, got %v", handler.rollbacks)
	}

	// The replacement anchor is applied after the rollback.
	last := handler.transactions[len(handler.transactions)-1]
	if last.AnchorHash != "batch3b" {
		t.Errorf("Expected replacement anchor batch3b, got %s", last.AnchorHash)
	}

	cursor := manager.Cursor()
	if cursor == nil || cursor.TransactionHash != "txn3b" {
		t.Errorf("Cursor not advanced to replacement transaction: %+v", cursor)
	}
}

func TestManagerReorgToGenesis(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	reader.anchor(1, "batch1", "txn1")
	reader.anchor(2, "batch2", "txn2")

	manager := NewManager(reader, time.Second)
	handler := &mockHandler{}
	manager.AddHandler(handler)

	ctx := context.Background()
	if err := manager.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	// The whole observed ledger disappears.
	reader.txns = map[uint64]Transaction{}

	if err := manager.Sync(ctx); err != nil {
		t.Fatalf("Sync after full reorg failed: %v", err)
	}

	if len(handler.rollbacks) != 1 || handler.rollbacks[0] != 0 {
		t.Fatalf("Expected rollback to position 0, got %v", handler.rollbacks)
	}
	if manager.Cursor() != nil {
		t.Errorf("Cursor should be empty after full reorg, got %+v", manager.Cursor())
	}
}

func TestManagerHandlerFailure(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	reader.anchor(1, "batch1", "txn1")

	manager := NewManager(reader, time.Second)
	handler := &mockHandler{failNext: true}
	manager.AddHandler(handler)

	if err := manager.Sync(context.Background()); err == nil {
		t.Error("Expected error from failing handler")
	}
	if manager.Cursor() != nil {
		t.Error("Cursor must not advance past a failed handler")
	}
}

func TestManagerStartStop(t *testing.T) {
	reader := &mockReader{txns: make(map[uint64]Transaction)}
	manager := NewManager(reader, 10*time.Millisecond)

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := manager.Start(ctx); err == nil {
		t.Error("Second start should fail")
	}

	manager.Stop()
}

func TestReorgError(t *testing.T) {
	err := &ReorgError{Position: 5, ExpectedHash: "a", ObservedHash: "b"}
	if !IsReorgError(err) {
		t.Error("IsReorgError should recognize ReorgError")
	}
	if IsReorgError(fmt.Errorf("plain")) {
		t.Error("IsReorgError should reject other errors")
	}
}

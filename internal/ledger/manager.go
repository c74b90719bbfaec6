package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/didanchor/didanchor/internal/alert"
)

// Manager polls the anchor ledger, detects reorganizations, and feeds
// transactions to its handlers one at a time in position order. Handlers
// therefore never see concurrent applies, which the cache's tie-break rule
// depends on.
type Manager struct {
	reader       Reader
	pollInterval time.Duration

	mu           sync.RWMutex
	handlers     []TransactionHandler
	alertManager *alert.Manager

	// processed holds every anchor applied since startup, newest last.
	// Needed to locate the divergence point when the ledger reorganizes.
	// Grows with the replayed ledger, like the cache itself.
	processed []Transaction

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewManager(reader Reader, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &Manager{
		reader:       reader,
		pollInterval: pollInterval,
		handlers:     make([]TransactionHandler, 0),
		stopCh:       make(chan struct{}),
	}
}

func (m *Manager) AddHandler(handler TransactionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

func (m *Manager) SetAlertManager(am *alert.Manager) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertManager = am
}

// Cursor returns the last applied transaction, or nil before any sync.
func (m *Manager) Cursor() *Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.processed) == 0 {
		return nil
	}
	txn := m.processed[len(m.processed)-1]
	return &txn
}

func (m *Manager) Start(ctx context.Context) error {
	if m.running {
		return fmt.Errorf("manager already running")
	}

	m.running = true
	m.wg.Add(1)
	go m.pollLoop(ctx)

	return nil
}

func (m *Manager) Stop() {
	if !m.running {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	errorCount := 0
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			if err := m.Sync(ctx); err != nil {
				fmt.Printf("Error syncing ledger: %v\n", err)
				errorCount++

				// Exponential backoff
				backoff := time.Duration(math.Pow(2, float64(errorCount))) * time.Second
				if backoff > maxBackoff {
					backoff = maxBackoff
				}

				m.mu.RLock()
				if m.alertManager != nil {
					_ = m.alertManager.SendSystemAlert(
						"Ledger Sync Failed",
						fmt.Sprintf("Failed to sync anchor ledger: %v. Retrying in %v...", err, backoff),
						"danger",
					)
				}
				m.mu.RUnlock()

				select {
				case <-time.After(backoff):
				case <-m.stopCh:
					return
				case <-ctx.Done():
					return
				}
			} else {
				errorCount = 0
				select {
				case <-time.After(m.pollInterval):
				case <-m.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Sync performs one observation round: verify the last seen anchor is still
// canonical (rolling back if not), then apply everything new.
func (m *Manager) Sync(ctx context.Context) error {
	if cursor := m.Cursor(); cursor != nil {
		observed, err := m.reader.At(ctx, cursor.SequencePosition)
		if err != nil {
			return err
		}
		if observed == nil || observed.TransactionHash != cursor.TransactionHash {
			reorg := &ReorgError{Position: cursor.SequencePosition, ExpectedHash: cursor.TransactionHash}
			if observed != nil {
				reorg.ObservedHash = observed.TransactionHash
			}
			if err := m.handleReorg(ctx, reorg); err != nil {
				return err
			}
		}
	}

	since := uint64(0)
	if cursor := m.Cursor(); cursor != nil {
		since = cursor.SequencePosition
	}

	txns, err := m.reader.Since(ctx, since)
	if err != nil {
		return err
	}

	for i := range txns {
		txn := txns[i]
		if err := m.dispatch(ctx, &txn); err != nil {
			return err
		}
		m.mu.Lock()
		m.processed = append(m.processed, txn)
		m.mu.Unlock()
	}

	return nil
}

func (m *Manager) dispatch(ctx context.Context, txn *Transaction) error {
	m.mu.RLock()
	handlers := make([]TransactionHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.HandleTransaction(ctx, txn); err != nil {
			return fmt.Errorf("handler failed at position %d: %w", txn.SequencePosition, err)
		}
	}
	return nil
}

// handleReorg walks the processed history backwards until it finds the
// newest anchor still on the canonical ledger, then tells every handler to
// forget everything above that position.
func (m *Manager) handleReorg(ctx context.Context, reorg *ReorgError) error {
	fmt.Printf("%v\n", reorg)

	m.mu.RLock()
	history := make([]Transaction, len(m.processed))
	copy(history, m.processed)
	m.mu.RUnlock()

	var commonPosition uint64
	keep := 0
	for i := len(history) - 1; i >= 0; i-- {
		observed, err := m.reader.At(ctx, history[i].SequencePosition)
		if err != nil {
			return err
		}
		if observed != nil && observed.TransactionHash == history[i].TransactionHash {
			commonPosition = history[i].SequencePosition
			keep = i + 1
			break
		}
	}

	m.mu.RLock()
	handlers := make([]TransactionHandler, len(m.handlers))
	copy(handlers, m.handlers)
	am := m.alertManager
	m.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.HandleRollback(ctx, commonPosition); err != nil {
			return fmt.Errorf("rollback handler failed: %w", err)
		}
	}

	m.mu.Lock()
	m.processed = m.processed[:keep]
	m.mu.Unlock()

	if am != nil {
		_ = am.SendReorgAlert(reorg.Position, commonPosition)
	}

	fmt.Printf("Rolled back to ledger position %d\n", commonPosition)
	return nil
}

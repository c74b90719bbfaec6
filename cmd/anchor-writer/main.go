package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/didanchor/didanchor/internal/cas"
	"github.com/didanchor/didanchor/internal/hash"
	"github.com/didanchor/didanchor/internal/operation"
)

// Writes an operation batch into the CAS and anchors it in the ledger
// table. Development utility: in production the batch writer and the
// ledger are separate systems.
func main() {
	if len(os.Args) < 5 {
		fmt.Fprintf(os.Stderr, "Usage: %s <cas-path> <ledger-conn-string> <position> <payload-file>...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Bundles the payload files into one batch, stores it in the CAS,\n")
		fmt.Fprintf(os.Stderr, "and inserts the anchor at the given ledger position\n")
		os.Exit(1)
	}

	casPath := os.Args[1]
	connString := os.Args[2]
	position, err := strconv.ParseUint(os.Args[3], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid position %q: %v\n", os.Args[3], err)
		os.Exit(1)
	}

	var payloads [][]byte
	for _, path := range os.Args[4:] {
		payload, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
			os.Exit(1)
		}
		if _, err := operation.ParsePayload(payload); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid operation payload %s: %v\n", path, err)
			os.Exit(1)
		}
		payloads = append(payloads, payload)
		fmt.Printf("Operation %s -> %s\n", path, hash.Compute(payload))
	}

	data, err := operation.NewBatch(payloads).Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal batch: %v\n", err)
		os.Exit(1)
	}

	store, err := cas.New(casPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open CAS: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	anchorHash, err := store.Write(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to store batch: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Batch stored: %s (%d operations)\n", anchorHash, len(payloads))

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to ledger: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	txnHash := hash.ComputeString(fmt.Sprintf("%d:%s", position, anchorHash))
	_, err = conn.Exec(ctx,
		"INSERT INTO anchors (position, anchor_hash, txn_hash) VALUES ($1, $2, $3)",
		position, anchorHash, txnHash,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to insert anchor: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Anchored at position %d (txn %s)\n", position, txnHash)
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/didanchor/didanchor/internal/cache"
	"github.com/didanchor/didanchor/internal/document"
	"github.com/didanchor/didanchor/internal/hash"
	"github.com/didanchor/didanchor/internal/operation"
)

type mapStore struct {
	batches map[string][]byte
}

func (s *mapStore) Read(ctx context.Context, batchHash string) ([]byte, error) {
	data, ok := s.batches[batchHash]
	if !ok {
		return nil, fmt.Errorf("batch not found: %s", batchHash)
	}
	return data, nil
}

// seedEngine builds an engine holding one DID with a create and one update.
func seedEngine(t *testing.T) (*cache.Engine, string, string) {
	t.Helper()

	store := &mapStore{batches: make(map[string][]byte)}
	engine := cache.NewEngine(store, document.NewProjector())

	createPayload := []byte(`{"type":"create","document":{"id":"did:anchor:a","generation":0}}`)
	genesis := hash.Compute(createPayload)
	updatePayload := []byte(fmt.Sprintf(
		`{"type":"update","previousVersionHash":%q,"patch":[{"op":"replace","path":"/generation","value":1}]}`, genesis))

	for pos, payload := range map[uint64][]byte{1: createPayload, 2: updatePayload} {
		data, err := operation.NewBatch([][]byte{payload}).Marshal()
		if err != nil {
			t.Fatal(err)
		}
		batchHash := hash.Compute(data)
		store.batches[batchHash] = data

		parsed, err := operation.ParsePayload(payload)
		if err != nil {
			t.Fatal(err)
		}
		op, err := operation.NewAnchored(payload, operation.Type(parsed.Type),
			operation.Timestamp{SequencePosition: pos}, batchHash, parsed.PreviousVersionHash)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := engine.Apply(op); err != nil {
			t.Fatal(err)
		}
	}

	return engine, genesis, hash.Compute(updatePayload)
}

func TestHealth(t *testing.T) {
	engine, _, _ := seedEngine(t)
	srv := httptest.NewServer(NewServer(engine))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestResolveEndpoint(t *testing.T) {
	engine, genesis, tip := seedEngine(t)
	srv := httptest.NewServer(NewServer(engine))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/1.0/identifiers/" + genesis)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		DID      string          `json:"did"`
		Version  string          `json:"versionId"`
		Document json.RawMessage `json:"document"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Version != tip {
		t.Errorf("Expected tip version %s, got %s", tip, body.Version)
	}

	var doc struct {
		Generation int `json:"generation"`
	}
	if err := json.Unmarshal(body.Document, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Generation != 1 {
		t.Errorf("Expected resolved document at generation 1, got %d", doc.Generation)
	}
}

func TestResolveUnknown(t *testing.T) {
	engine, _, _ := seedEngine(t)
	srv := httptest.NewServer(NewServer(engine))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/1.0/identifiers/QmUnknown")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown DID, got %d", resp.StatusCode)
	}
}

func TestTraversalEndpoints(t *testing.T) {
	engine, genesis, tip := seedEngine(t)
	srv := httptest.NewServer(NewServer(engine))
	defer srv.Close()

	get := func(t *testing.T, path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var body struct {
			Version string `json:"versionId"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body.Version
	}

	t.Run("Next", func(t *testing.T) {
		status, version := get(t, "/1.0/versions/"+genesis+"/next")
		if status != http.StatusOK || version != tip {
			t.Errorf("next = %d, %s; want 200, %s", status, version, tip)
		}
	})

	t.Run("Prev", func(t *testing.T) {
		status, version := get(t, "/1.0/versions/"+tip+"/prev")
		if status != http.StatusOK || version != genesis {
			t.Errorf("prev = %d, %s; want 200, %s", status, version, genesis)
		}
	})

	t.Run("First", func(t *testing.T) {
		status, version := get(t, "/1.0/versions/"+tip+"/first")
		if status != http.StatusOK || version != genesis {
			t.Errorf("first = %d, %s; want 200, %s", status, version, genesis)
		}
	})

	t.Run("Last", func(t *testing.T) {
		status, version := get(t, "/1.0/versions/"+genesis+"/last")
		if status != http.StatusOK || version != tip {
			t.Errorf("last = %d, %s; want 200, %s", status, version, tip)
		}
	})

	t.Run("NextOfTipUnknown", func(t *testing.T) {
		status, _ := get(t, "/1.0/versions/"+tip+"/next")
		if status != http.StatusNotFound {
			t.Errorf("Expected 404 for next of tip, got %d", status)
		}
	})
}

func TestLookupEndpoint(t *testing.T) {
	engine, genesis, _ := seedEngine(t)
	srv := httptest.NewServer(NewServer(engine))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/1.0/versions/" + genesis)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Document json.RawMessage `json:"document"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Generation int `json:"generation"`
	}
	if err := json.Unmarshal(body.Document, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Generation != 0 {
		t.Errorf("Lookup of genesis version should return generation 0, got %d", doc.Generation)
	}
}

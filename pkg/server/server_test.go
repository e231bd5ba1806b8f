// Copyright 2025 Certen Protocol
//
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certenio/ledgerd/pkg/engine"
	"github.com/certenio/ledgerd/pkg/kvdb"
	"github.com/certenio/ledgerd/pkg/ledger"
	"github.com/certenio/ledgerd/pkg/mining"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := kvdb.Open(kvdb.BackendMemDB, "test", "")
	if err != nil {
		t.Fatalf("open kv: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	repo := ledger.New(store)
	eng := engine.New(repo, mining.NewPool(2), engine.Config{MaxPayloadBytes: 1 << 20, MaxRangeBlocks: 1000})
	if err := eng.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return New(eng)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v (body=%s)", err, rec.Body.String())
	}
	return rec, resp
}

func TestCreateChainEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec, resp := doJSON(t, s, http.MethodPost, "/v1/chains", createChainRequest{ChainID: "tx", Kind: "Transaction"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %+v", rec.Code, resp)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
}

func TestCreateChainDuplicateConflict(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/chains", createChainRequest{ChainID: "tx", Kind: "Transaction"})
	rec, resp := doJSON(t, s, http.MethodPost, "/v1/chains", createChainRequest{ChainID: "tx", Kind: "Transaction"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %+v", rec.Code, resp)
	}
}

func TestAppendBlockEndpoint(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/chains", createChainRequest{ChainID: "tx", Kind: "Transaction"})
	rec, resp := doJSON(t, s, http.MethodPost, "/v1/chains/tx/blocks", appendBlockRequest{Payload: []byte("hello")})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %+v", rec.Code, resp)
	}
}

func TestGetHeadUnknownChain(t *testing.T) {
	s := newTestServer(t)
	rec, _ := doJSON(t, s, http.MethodGet, "/v1/chains/nope/head", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetBlockRangeFromGreaterThanTo(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s, http.MethodPost, "/v1/chains", createChainRequest{ChainID: "tx", Kind: "Transaction"})
	rec, resp := doJSON(t, s, http.MethodGet, "/v1/chains/tx/blocks?from=5&to=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %+v", rec.Code, resp)
	}
}

// Copyright 2025 Certen Protocol
//
package kvdb

import (
	"bytes"
	"testing"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(BackendMemDB, "test", "")
	if err != nil {
		t.Fatalf("open memdb: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := openMem(t)
	if err := s.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get([]byte("k1"))
	if err != nil || !ok {
		t.Fatalf("get: %v ok=%v", err, ok)
	}
	if !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("got %q want v1", v)
	}
}

func TestGetMissing(t *testing.T) {
	s := openMem(t)
	_, ok, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for missing key")
	}
}

func TestWriteBatchAtomic(t *testing.T) {
	s := openMem(t)
	err := s.WriteBatch([]Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	for _, k := range []string{"a", "b"} {
		if _, ok, _ := s.Get([]byte(k)); !ok {
			t.Fatalf("expected key %q after batch", k)
		}
	}
}

func TestScanPrefixOrder(t *testing.T) {
	s := openMem(t)
	keys := []string{"block:tx:00000000000000000000", "block:tx:00000000000000000001", "block:tx:00000000000000000002", "other:key"}
	for _, k := range keys {
		if err := s.Put([]byte(k), []byte("v")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	it, err := s.ScanPrefix([]byte("block:tx:"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Item().Key))
	}
	if err := it.Error(); err != nil {
		t.Fatalf("iterator error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 keys under prefix, got %d: %v", len(got), got)
	}
	for i := 0; i < len(got)-1; i++ {
		if got[i] >= got[i+1] {
			t.Fatalf("keys not in ascending order: %v", got)
		}
	}
}

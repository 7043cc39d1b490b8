package store

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "points_0xABC1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for missing key, got %v", err)
	}

	if err := s.Set(ctx, "points_0xABC1", []byte(`{"total":5}`)); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}

	got, err := s.Get(ctx, "points_0xABC1")
	if err != nil {
		t.Fatalf("Failed to get key: %v", err)
	}
	if string(got) != `{"total":5}` {
		t.Errorf("Unexpected value: %s", got)
	}

	// Overwrite
	if err := s.Set(ctx, "points_0xABC1", []byte(`{"total":10}`)); err != nil {
		t.Fatalf("Failed to overwrite key: %v", err)
	}
	got, _ = s.Get(ctx, "points_0xABC1")
	if string(got) != `{"total":10}` {
		t.Errorf("Expected overwritten value, got %s", got)
	}

	// Prefix scan only sees matching keys
	if err := s.Set(ctx, "points_0xDEF1", []byte(`{}`)); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}
	if err := s.Set(ctx, "referrals_0xABC1", []byte(`[]`)); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}

	keys, err := s.Keys(ctx, PointsPrefix)
	if err != nil {
		t.Fatalf("Failed to scan keys: %v", err)
	}
	want := []string{"points_0xABC1", "points_0xDEF1"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Expected keys %v, got %v", want, keys)
	}

	// Delete
	if err := s.Delete(ctx, "points_0xABC1"); err != nil {
		t.Fatalf("Failed to delete key: %v", err)
	}
	if _, err := s.Get(ctx, "points_0xABC1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreRoundTrip(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dbPath := "./test_store_" + time.Now().Format("20060102150405.000000000") + ".db"
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer func() {
		s.Close()
		os.Remove(dbPath)
	}()

	testStoreRoundTrip(t, s)
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	value := []byte("original")
	if err := s.Set(ctx, "k", value); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}
	value[0] = 'X'

	got, _ := s.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("Stored value was mutated through caller's slice: %s", got)
	}

	got[0] = 'Y'
	again, _ := s.Get(ctx, "k")
	if string(again) != "original" {
		t.Errorf("Stored value was mutated through returned slice: %s", again)
	}
}

func TestJSONHelpers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	type record struct {
		Name  string    `json:"name"`
		Total int       `json:"total"`
		When  time.Time `json:"when"`
	}

	in := record{Name: "0xABC1", Total: 42, When: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	if err := SetJSON(ctx, s, "k", in); err != nil {
		t.Fatalf("Failed to set JSON: %v", err)
	}

	var out record
	if err := GetJSON(ctx, s, "k", &out); err != nil {
		t.Fatalf("Failed to get JSON: %v", err)
	}
	if out.Name != in.Name || out.Total != in.Total || !out.When.Equal(in.When) {
		t.Errorf("Round trip mismatch: %+v vs %+v", in, out)
	}

	if err := GetJSON(ctx, s, "missing", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

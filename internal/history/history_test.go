package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendPublicCapEvictsOldest(t *testing.T) {
	t.Parallel()

	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	for i := 0; i < PublicCap+5; i++ {
		if err := st.AppendPublic("alice", fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries, err := st.LoadPublic()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != PublicCap {
		t.Fatalf("expected %d entries, got %d", PublicCap, len(entries))
	}
	if entries[0].Text != "msg-5" {
		t.Fatalf("expected oldest entry msg-5, got %q", entries[0].Text)
	}
	if entries[len(entries)-1].Text != fmt.Sprintf("msg-%d", PublicCap+4) {
		t.Fatalf("unexpected newest entry %q", entries[len(entries)-1].Text)
	}
}

func TestLoadPublicMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	entries, err := st.LoadPublic()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty log, got %#v", entries)
	}
}

func TestPublicLineFormat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.AppendPublic("alice", "hola"); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "general.txt"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if string(raw) != "alice|hola\n" {
		t.Fatalf("unexpected file contents %q", raw)
	}
}

func TestPipeInTextSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.AppendPublic("alice", "a|b|c"); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := st.LoadPublic()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 1 || entries[0].Sender != "alice" || entries[0].Text != "a|b|c" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	st, err := New(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	raw := "alice|hola\n\nno separator here\nbob|que tal\n"
	if err := os.WriteFile(filepath.Join(dir, "general.txt"), []byte(raw), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	entries, err := st.LoadPublic()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(entries) != 2 || entries[0].Sender != "alice" || entries[1].Sender != "bob" {
		t.Fatalf("unexpected entries: %#v", entries)
	}
}

func TestPairPathOrderInsensitive(t *testing.T) {
	t.Parallel()

	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if st.PairPath("bob", "alice") != st.PairPath("alice", "bob") {
		t.Fatal("expected one canonical path per pair")
	}
	if filepath.Base(st.PairPath("bob", "alice")) != "alice_bob.txt" {
		t.Fatalf("unexpected pair file name %q", filepath.Base(st.PairPath("bob", "alice")))
	}
}

func TestAppendPrivateBothDirectionsShareOneLog(t *testing.T) {
	t.Parallel()

	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := st.AppendPrivate("alice", "bob", "hola"); err != nil {
		t.Fatalf("append alice->bob: %v", err)
	}
	if err := st.AppendPrivate("bob", "alice", "que tal"); err != nil {
		t.Fatalf("append bob->alice: %v", err)
	}

	entries, found, err := st.LoadPrivate("bob", "alice")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("expected pair log to exist")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Sender != "alice" || entries[0].Text != "hola" {
		t.Fatalf("unexpected first entry: %#v", entries[0])
	}
	if entries[1].Sender != "bob" || entries[1].Text != "que tal" {
		t.Fatalf("unexpected second entry: %#v", entries[1])
	}
}

func TestLoadPrivateMissingPair(t *testing.T) {
	t.Parallel()

	st, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	entries, found, err := st.LoadPrivate("alice", "nadie")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatalf("expected no pair log, got %#v", entries)
	}
}

func TestNewRequiresDirectory(t *testing.T) {
	t.Parallel()

	if _, err := New("  "); err == nil {
		t.Fatal("expected error for blank directory")
	}
}

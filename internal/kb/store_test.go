package kb

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "knowledge_base.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func testEntry(cr string) Entry {
	return Entry{
		CRNumber:  cr,
		Title:     "Test Document " + cr,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Document: Document{
			Markdown:      "# Document " + cr,
			SchemaVersion: "abc123",
		},
	}
}

func TestAllocate_EmptyStore(t *testing.T) {
	s := newTestStore(t)
	if got := s.AllocateNextCRNumber(); got != "CR000001" {
		t.Errorf("expected CR000001, got %q", got)
	}
}

func TestAllocate_AfterCommit(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit(testEntry("CR000001")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if got := s.AllocateNextCRNumber(); got != "CR000002" {
		t.Errorf("expected CR000002, got %q", got)
	}
}

func TestAllocate_GappyStore(t *testing.T) {
	s := newTestStore(t)
	for _, cr := range []string{"CR000001", "CR000003"} {
		if err := s.Commit(testEntry(cr)); err != nil {
			t.Fatalf("commit %s: %v", cr, err)
		}
	}
	if got := s.AllocateNextCRNumber(); got != "CR000004" {
		t.Errorf("expected CR000004, got %q", got)
	}
}

func TestAllocate_IgnoresManuallyEditedKeys(t *testing.T) {
	s := newTestStore(t)
	for _, cr := range []string{"CR000002", "legacy-import", "CRX99"} {
		if err := s.Commit(testEntry(cr)); err != nil {
			t.Fatalf("commit %s: %v", cr, err)
		}
	}
	if got := s.AllocateNextCRNumber(); got != "CR000003" {
		t.Errorf("expected CR000003, got %q", got)
	}
}

func TestAllocate_NeverReturnsExisting(t *testing.T) {
	s := newTestStore(t)
	for i := 1; i <= 20; i++ {
		cr := s.AllocateNextCRNumber()
		if _, found := s.Find(cr); found {
			t.Fatalf("allocator returned existing cr %s", cr)
		}
		if err := s.Commit(testEntry(cr)); err != nil {
			t.Fatalf("commit %s: %v", cr, err)
		}
	}
}

func TestCommit_FindIsInverse(t *testing.T) {
	s := newTestStore(t)
	e := testEntry("CR000007")
	e.ParentCR = "CR000001"
	e.Document.RevisionCount = 2
	if err := s.Commit(e); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, found := s.Find("CR000007")
	if !found {
		t.Fatal("expected committed entry to be found")
	}
	if got != e {
		t.Errorf("find returned %+v, want %+v", got, e)
	}
}

func TestCommit_DuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit(testEntry("CR000001")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	err := s.Commit(testEntry("CR000001"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("duplicate commit must not grow the store, len=%d", s.Len())
	}
}

func TestCommit_AtomicOnWriteFailure(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit(testEntry("CR000001")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	before := s.ListAll()

	s.writeFile = func([]byte) error {
		return fmt.Errorf("disk full")
	}

	err := s.Commit(testEntry("CR000002"))
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	after := s.ListAll()
	if len(after) != len(before) {
		t.Fatalf("failed commit changed the store: before=%d after=%d", len(before), len(after))
	}
	if _, found := s.Find("CR000002"); found {
		t.Error("rolled-back entry still findable")
	}

	// A later commit with a healthy writer succeeds again.
	s.writeFile = s.atomicWrite
	if err := s.Commit(testEntry("CR000002")); err != nil {
		t.Fatalf("retry commit after rollback: %v", err)
	}
}

func TestRoundTrip_LoadCommitReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	e1 := testEntry("CR000001")
	e2 := testEntry("CR000002")
	e2.ParentCR = "CR000001"
	for _, e := range []Entry{e1, e2} {
		if err := s.Commit(e); err != nil {
			t.Fatalf("commit %s: %v", e.CRNumber, err)
		}
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reopened.ListAll()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", len(got))
	}
	if got[0] != e1 || got[1] != e2 {
		t.Errorf("reload lost data: got %+v", got)
	}
	if next := reopened.AllocateNextCRNumber(); next != "CR000003" {
		t.Errorf("expected allocation to continue at CR000003, got %q", next)
	}
}

func TestListAll_ReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	if err := s.Commit(testEntry("CR000001")); err != nil {
		t.Fatalf("commit: %v", err)
	}
	list := s.ListAll()
	list[0].Title = "mutated"
	got, _ := s.Find("CR000001")
	if got.Title == "mutated" {
		t.Error("ListAll must not expose internal state")
	}
}

func TestParseCRNumber(t *testing.T) {
	if n, ok := ParseCRNumber("CR000042"); !ok || n != 42 {
		t.Errorf("ParseCRNumber(CR000042) = %d, %v", n, ok)
	}
	for _, bad := range []string{"", "CR", "CRabc", "42", "cr000042"} {
		if _, ok := ParseCRNumber(bad); ok {
			t.Errorf("ParseCRNumber(%q) should fail", bad)
		}
	}
	if got := FormatCRNumber(7); got != "CR000007" {
		t.Errorf("FormatCRNumber(7) = %q", got)
	}
}

package gitrepo

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"nercollab/internal/annotation"
)

func TestRecordSubmissionAndHistory(t *testing.T) {
	svc := New(t.TempDir())

	first := []annotation.Span{{Start: 0, End: 5, Label: "PERSON"}}
	if _, err := svc.RecordSubmission("ws-1", "task-1", "alice", first); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if _, err := svc.RecordSubmission("ws-1", "task-1", "bob", first); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	second := []annotation.Span{
		{Start: 0, End: 5, Label: "PERSON"},
		{Start: 10, End: 15, Label: "LOCATION"},
	}
	commit, err := svc.RecordSubmission("ws-1", "task-1", "alice", second)
	if err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if commit.Annotator != "alice" || commit.TaskID != "task-1" || commit.SpanCount != 2 {
		t.Fatalf("unexpected commit info: %+v", commit)
	}
	if len(commit.Hash) != 7 {
		t.Fatalf("expected short hash, got %q", commit.Hash)
	}

	all, err := svc.History("ws-1", "task-1", "", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(all))
	}
	if all[0].Hash != commit.Hash {
		t.Fatalf("expected newest first, got %+v", all)
	}

	alice, err := svc.History("ws-1", "task-1", "alice", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(alice) != 2 {
		t.Fatalf("expected 2 alice submissions, got %d", len(alice))
	}

	limited, err := svc.History("ws-1", "task-1", "", 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	other, err := svc.History("ws-1", "task-2", "", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no history for another task, got %+v", other)
	}
}

func TestSubmissionAtReadsPastVersion(t *testing.T) {
	svc := New(t.TempDir())

	old, err := svc.RecordSubmission("ws-1", "task-1", "alice", []annotation.Span{{Start: 0, End: 3, Label: "DATE"}})
	if err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if _, err := svc.RecordSubmission("ws-1", "task-1", "alice", []annotation.Span{}); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}

	spans, err := svc.SubmissionAt("ws-1", old.Hash, "task-1", "alice")
	if err != nil {
		t.Fatalf("SubmissionAt() error = %v", err)
	}
	if len(spans) != 1 || spans[0].Label != "DATE" {
		t.Fatalf("unexpected spans at %s: %+v", old.Hash, spans)
	}
}

func TestIdenticalResubmissionStillCommits(t *testing.T) {
	svc := New(t.TempDir())
	spans := []annotation.Span{{Start: 1, End: 2, Label: "MISC"}}
	for i := 0; i < 2; i++ {
		if _, err := svc.RecordSubmission("ws-1", "task-1", "guest user", spans); err != nil {
			t.Fatalf("RecordSubmission() error = %v", err)
		}
	}
	history, err := svc.History("ws-1", "task-1", "guest user", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 commits, got %d", len(history))
	}
}

func TestHistoryWithoutRepoIsEmpty(t *testing.T) {
	svc := New(t.TempDir())
	history, err := svc.History("missing", "task-1", "", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
	if _, err := svc.SubmissionAt("missing", "abcdef0", "task-1", "alice"); err != ErrNoHistory {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
}

func TestConcurrentSubmissionsSameWorkspace(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureWorkspaceRepo("ws-1"); err != nil {
		t.Fatalf("EnsureWorkspaceRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			spans := []annotation.Span{{Start: idx, End: idx + 1, Label: "MISC"}}
			if _, err := svc.RecordSubmission("ws-1", "task-1", fmt.Sprintf("annotator-%02d", idx), spans); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("RecordSubmission() concurrent error = %v", err)
	}

	history, err := svc.History("ws-1", "task-1", "", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d commits, got %d", writers, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Alice Smith": "Alice.Smith",
		"김민수":         "annotator",
		"bob_1":       "bob.1",
	}
	for in, want := range cases {
		if got := sanitizeEmail(in); got != want {
			t.Fatalf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecordSubmissionRejectsMultilineTrailers(t *testing.T) {
	svc := New(t.TempDir())
	spans := []annotation.Span{{Start: 0, End: 3, Label: "PERSON"}}

	for _, annotator := range []string{"eve\ntask: task-b", "eve\r", "", "tab\there"} {
		if _, err := svc.RecordSubmission("ws-1", "task-a", annotator, spans); !errors.Is(err, ErrInvalidTrailer) {
			t.Fatalf("RecordSubmission(%q) error = %v, want ErrInvalidTrailer", annotator, err)
		}
	}
	if _, err := svc.RecordSubmission("ws-1", "task-a\nannotator: bob", "eve", spans); !errors.Is(err, ErrInvalidTrailer) {
		t.Fatalf("expected multiline task id to be rejected, got %v", err)
	}

	commit, err := svc.RecordSubmission("ws-1", "task-a", "Eve: the reviewer", spans)
	if err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if commit.TaskID != "task-a" || commit.Annotator != "Eve: the reviewer" {
		t.Fatalf("unexpected commit info: %+v", commit)
	}
	other, err := svc.History("ws-1", "task-b", "", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("submission leaked into another task: %+v", other)
	}
}

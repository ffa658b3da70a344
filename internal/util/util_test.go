package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("ws")
	if !strings.HasPrefix(id, "ws_") || len(id) != len("ws_")+20 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("ws") == id {
		t.Fatal("expected distinct ids")
	}
	if bare := NewID(""); len(bare) != 20 {
		t.Fatalf("unexpected bare id %q", bare)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		text  string
		limit int
		want  string
		cut   bool
	}{
		{"hello", 5, "hello", false},
		{"hello world", 5, "hello...", true},
		{"서울특별시", 2, "서울...", true},
		{"anything", 0, "anything", false},
		{"", 3, "", false},
	}
	for _, tt := range tests {
		got, cut := Truncate(tt.text, tt.limit)
		if got != tt.want || cut != tt.cut {
			t.Fatalf("Truncate(%q, %d) = %q, %v; want %q, %v", tt.text, tt.limit, got, cut, tt.want, tt.cut)
		}
	}
}

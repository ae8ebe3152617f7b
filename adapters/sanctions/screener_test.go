package sanctions

import (
	"context"
	"testing"
)

func testEntries() []Entry {
	return []Entry{
		{ID: "1", Names: []string{"John Smith"}, Aliases: []string{"J. Smith"}, Source: "OFAC"},
		{ID: "2", Names: []string{"Acme Holdings"}, Source: "EU"},
	}
}

func TestScreenExactMatch(t *testing.T) {
	s := New(testEntries(), 3)
	matches, err := s.Screen(context.Background(), "John Smith")
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match for an exact name")
	}
	if matches[0].Score != 1.0 {
		t.Fatalf("expected score 1.0 for an exact match, got %f", matches[0].Score)
	}
}

func TestScreenFuzzyMatch(t *testing.T) {
	s := New(testEntries(), 3)
	matches, err := s.Screen(context.Background(), "Jon Smith")
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected a fuzzy match within the distance threshold")
	}
}

func TestScreenNoMatch(t *testing.T) {
	s := New(testEntries(), 3)
	matches, err := s.Screen(context.Background(), "Completely Unrelated Name")
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestScreenEmptyNameReturnsNoMatches(t *testing.T) {
	s := New(testEntries(), 3)
	matches, err := s.Screen(context.Background(), "")
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if matches != nil {
		t.Fatalf("expected nil matches for an empty query, got %v", matches)
	}
}

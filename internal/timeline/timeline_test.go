package timeline

import "testing"

func TestAddAndRecent(t *testing.T) {
	l := New(10)
	l.Add("status", "first")
	l.Add("user", "second")
	l.Add("system", "third")

	got := l.Recent(2)
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d entries", len(got))
	}
	if got[0].Text != "second" || got[1].Text != "third" {
		t.Errorf("entries out of order: %v", got)
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	l := New(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		l.Add("k", s)
	}
	got := l.Recent(0)
	if len(got) != 3 {
		t.Fatalf("kept %d entries, want 3", len(got))
	}
	if got[0].Text != "c" || got[2].Text != "e" {
		t.Errorf("wrong survivors: %v", got)
	}
}

func TestRecentBeyondLength(t *testing.T) {
	l := New(5)
	l.Add("k", "only")
	if got := l.Recent(50); len(got) != 1 || got[0].Text != "only" {
		t.Errorf("Recent(50) = %v", got)
	}
}

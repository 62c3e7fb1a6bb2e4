package presence

import (
	"testing"
	"time"
)

func TestNextHost_EarliestJoinedWins(t *testing.T) {
	base := time.Now()
	cands := []Candidate{
		{ID: "p3", JoinedAt: base.Add(3 * time.Minute)},
		{ID: "p1", JoinedAt: base.Add(1 * time.Minute)},
		{ID: "p2", JoinedAt: base.Add(2 * time.Minute)},
	}

	id, ok := NextHost(cands)
	if !ok || id != "p1" {
		t.Fatalf("got (%q, %v), want (p1, true)", id, ok)
	}
}

func TestNextHost_TieBreaksOnID(t *testing.T) {
	base := time.Now()
	cands := []Candidate{
		{ID: "zz", JoinedAt: base},
		{ID: "aa", JoinedAt: base},
	}

	id, _ := NextHost(cands)
	if id != "aa" {
		t.Fatalf("got %q, want aa", id)
	}
}

func TestNextHost_NoCandidates(t *testing.T) {
	if _, ok := NextHost(nil); ok {
		t.Fatalf("expected no host from empty candidate set")
	}
}

func TestStale(t *testing.T) {
	now := time.Now()
	cands := []Candidate{
		{ID: "fresh", LastSeenAt: now.Add(-10 * time.Second)},
		{ID: "gone", LastSeenAt: now.Add(-2 * time.Minute)},
		{ID: "edge", LastSeenAt: now.Add(-OfflineTimeout)},
	}

	got := Stale(cands, now, OfflineTimeout)
	if len(got) != 1 || got[0] != "gone" {
		t.Fatalf("got %v, want [gone]", got)
	}
}

package randutil

import (
	"testing"
)

func TestSeederFixedSeedIsReproducible(t *testing.T) {
	a := NewSeeder(42)
	b := NewSeeder(42)
	for i := 0; i < 10; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("seed %d differs: %d != %d", i, x, y)
		}
	}
	ra, rb := a.Rand(), b.Rand()
	for i := 0; i < 10; i++ {
		if x, y := ra.IntN(1000), rb.IntN(1000); x != y {
			t.Fatalf("draw %d differs: %d != %d", i, x, y)
		}
	}
}

func TestSampleDistinctWithinRange(t *testing.T) {
	rng := FromSeed(7)
	for trial := 0; trial < 200; trial++ {
		got := Sample(rng, 20, 8)
		if len(got) != 8 {
			t.Fatalf("expected 8 indices, got %d", len(got))
		}
		seen := make(map[int]bool)
		for _, idx := range got {
			if idx < 0 || idx >= 20 {
				t.Fatalf("index %d out of range", idx)
			}
			if seen[idx] {
				t.Fatalf("duplicate index %d in %v", idx, got)
			}
			seen[idx] = true
		}
	}
}

func TestSampleCapsAtPopulation(t *testing.T) {
	got := Sample(FromSeed(1), 3, 10)
	if len(got) != 3 {
		t.Fatalf("expected sample capped at 3, got %v", got)
	}
	if got := Sample(FromSeed(1), 3, 0); len(got) != 0 {
		t.Fatalf("expected empty sample, got %v", got)
	}
}

func TestSampleExcluding(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		exclude  int
		distinct bool
	}{
		{"Large population", 10, 4, true},
		{"Exactly enough", 4, 0, true},
		{"Two members", 2, 1, false},
		{"Single member", 1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := FromSeed(99)
			for trial := 0; trial < 100; trial++ {
				got := SampleExcluding(rng, tt.n, 3, tt.exclude)
				if len(got) != 3 {
					t.Fatalf("expected 3 donors, got %v", got)
				}
				seen := make(map[int]bool)
				for _, idx := range got {
					if tt.n > 1 && idx == tt.exclude {
						t.Fatalf("excluded index %d drawn: %v", tt.exclude, got)
					}
					if tt.distinct && seen[idx] {
						t.Fatalf("expected distinct donors, got %v", got)
					}
					seen[idx] = true
				}
			}
		})
	}
}

package registry

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// Property: after any interleaving of RecordPattern calls, ProvenPatterns
// returns one entry per distinct genesis id, holding the last recorded value,
// sorted by confidence descending.
func TestProvenPatterns_RankingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := NewDispatcher(New(nil), nil)

		genesisGen := rapid.SampledFrom([]string{"g1", "g2", "g3", "g4", "g5"})
		confidenceGen := rapid.Float64Range(0, 1)

		n := rapid.IntRange(0, 40).Draw(t, "n")
		latest := make(map[string]float64)
		for i := 0; i < n; i++ {
			genesis := genesisGen.Draw(t, fmt.Sprintf("genesis_%d", i))
			confidence := confidenceGen.Draw(t, fmt.Sprintf("confidence_%d", i))
			d.RecordPattern("wf", ProvenPattern{GenesisID: genesis, Confidence: confidence})
			latest[genesis] = confidence
		}

		patterns := d.ProvenPatterns("wf")
		if len(patterns) != len(latest) {
			t.Fatalf("got %d patterns, want one per genesis id (%d)", len(patterns), len(latest))
		}
		for i, p := range patterns {
			want, ok := latest[p.GenesisID]
			if !ok {
				t.Fatalf("unexpected genesis id %q", p.GenesisID)
			}
			if p.Confidence != want {
				t.Fatalf("genesis %q has confidence %v, want last recorded %v", p.GenesisID, p.Confidence, want)
			}
			if i > 0 && patterns[i-1].Confidence < p.Confidence {
				t.Fatalf("patterns not sorted by confidence desc at index %d", i)
			}
			delete(latest, p.GenesisID)
		}
	})
}

// Property: alias resolution is total and never chases more than one level.
func TestResolveAlias_TotalityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reg := New(nil)

		names := []string{"a", "b", "c", "d", "e"}
		nameGen := rapid.SampledFrom(names)

		aliasCount := rapid.IntRange(0, 10).Draw(t, "alias_count")
		aliases := make(map[string]string)
		for i := 0; i < aliasCount; i++ {
			from := nameGen.Draw(t, fmt.Sprintf("from_%d", i))
			to := nameGen.Draw(t, fmt.Sprintf("to_%d", i))
			reg.CreateAlias(from, to)
			aliases[from] = to
		}

		for _, name := range names {
			got := reg.ResolveAlias(name)
			if target, ok := aliases[name]; ok {
				if got != target {
					t.Fatalf("ResolveAlias(%q) = %q, want direct target %q", name, got, target)
				}
			} else if got != name {
				t.Fatalf("ResolveAlias(%q) = %q, want identity", name, got)
			}
		}
	})
}

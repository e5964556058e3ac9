package analysis

import (
	"context"
	"testing"
	"time"

	"coherence/core"
)

func TestGenerateResultHoldsInvariants(t *testing.T) {
	for _, duration := range []float64{10, 42, 120, 183, 3600} {
		result := GenerateResult("vid-1", duration)
		if err := result.Validate(); err != nil {
			t.Errorf("duration %.0f: %v", duration, err)
		}
		for _, f := range result.DissonanceFlags {
			if f.EndTimestamp != nil && *f.EndTimestamp > duration {
				t.Errorf("duration %.0f: flag %s ends at %.1f past the video", duration, f.ID, *f.EndTimestamp)
			}
		}
	}
}

func TestGenerateResultCarriesTranscript(t *testing.T) {
	result := GenerateResult("vid-1", 120)
	if len(result.Transcript) == 0 {
		t.Fatal("demo result must include transcript segments")
	}
	flagIDs := make(map[string]bool)
	for _, f := range result.DissonanceFlags {
		flagIDs[f.ID] = true
	}
	for i, seg := range result.Transcript {
		if seg.Start < 0 || seg.End > result.DurationSeconds {
			t.Errorf("segment %d [%.1f, %.1f] outside the video", i, seg.Start, seg.End)
		}
		if i > 0 && seg.Start < result.Transcript[i-1].Start {
			t.Errorf("segment %d starts before its predecessor", i)
		}
		if seg.FlagID != "" && !flagIDs[seg.FlagID] {
			t.Errorf("segment %d references unknown flag %q", i, seg.FlagID)
		}
	}
}

func TestScoreTierCutoffs(t *testing.T) {
	cases := []struct {
		score int
		want  core.ScoreTier
	}{
		{0, core.TierNeedsWork},
		{50, core.TierNeedsWork},
		{51, core.TierGoodStart},
		{75, core.TierGoodStart},
		{76, core.TierStrong},
		{100, core.TierStrong},
	}
	for _, c := range cases {
		if got := core.TierForScore(c.score); got != c.want {
			t.Errorf("TierForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestSampleResultsCarryTheirScores(t *testing.T) {
	for _, id := range SampleIDs() {
		info, ok := SampleInfo(id)
		if !ok {
			t.Fatalf("sample %s missing info", id)
		}
		result, ok := SampleResult(id)
		if !ok {
			t.Fatalf("sample %s missing result", id)
		}
		if result.CoherenceScore != info.Score {
			t.Errorf("%s score = %d, info says %d", id, result.CoherenceScore, info.Score)
		}
		if result.ScoreTier != core.TierForScore(info.Score) {
			t.Errorf("%s tier = %s", id, result.ScoreTier)
		}
		if err := result.Validate(); err != nil {
			t.Errorf("%s: %v", id, err)
		}
	}
	if IsSample("sample-9") {
		t.Error("sample-9 should not exist")
	}
}

func TestDemoProviderHonorsCancellation(t *testing.T) {
	p := &DemoProvider{Latency: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Analyze(ctx, core.VideoMeta{ID: "vid-1", Duration: 60}); err == nil {
		t.Error("cancelled analyze should return the context error")
	}
}

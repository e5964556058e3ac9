package analysis

import (
	"context"
	"fmt"
	"time"

	"coherence/core"
)

// DemoProvider is the local development backend: a deterministic dataset
// with simulated latency, so the whole upload/poll/results flow works with
// no external analyzer.
type DemoProvider struct {
	// Latency is the simulated end-to-end analysis time.
	Latency time.Duration
}

func NewDemoProvider() *DemoProvider {
	return &DemoProvider{Latency: 10 * time.Second}
}

func (p *DemoProvider) Name() string { return "demo" }

func (p *DemoProvider) Analyze(ctx context.Context, meta core.VideoMeta) (*core.AnalysisResult, error) {
	select {
	case <-time.After(p.Latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	duration := meta.Duration
	if duration <= 0 {
		duration = 183
	}
	return GenerateResult(meta.ID, duration), nil
}

func ptr(v float64) *float64 { return &v }

// GenerateResult builds the demo analysis for a video. Flag timestamps are
// placed proportionally so the invariants hold for any duration.
func GenerateResult(videoID string, duration float64) *core.AnalysisResult {
	at := func(fraction float64) float64 { return duration * fraction }

	flags := []core.DissonanceFlag{
		{
			ID:             "flag-1",
			Timestamp:      at(0.25),
			EndTimestamp:   ptr(at(0.25) + 3),
			Type:           core.EmotionalMismatch,
			Severity:       core.SeverityHigh,
			Description:    `Said "thrilled to present" but facial expression showed anxiety`,
			Coaching:       "Practice saying this line while smiling in a mirror. Your face should match your excitement.",
			VisualEvidence: "Vision model: person looking anxious",
			VerbalEvidence: `Transcript: "thrilled" (positive sentiment)`,
			Confidence:     ptr(88),
		},
		{
			ID:             "flag-2",
			Timestamp:      at(0.46),
			Type:           core.MissingGesture,
			Severity:       core.SeverityMedium,
			Description:    `Said "look at this data" without pointing at screen`,
			Coaching:       "When referencing visuals, physically point to anchor audience attention.",
			VerbalEvidence: `Transcript: deictic phrase "this data" detected`,
			Confidence:     ptr(72),
		},
		{
			ID:           "flag-3",
			Timestamp:    at(0.74),
			EndTimestamp: ptr(at(0.74) + 14),
			Type:         core.PacingMismatch,
			Severity:     core.SeverityHigh,
			Description:  "Slide 4 contains 127 words but only shown for 14 seconds",
			Coaching:     "Either reduce slide text to <50 words or extend explanation to ~45 seconds.",
			Confidence:   ptr(81),
		},
	}
	// Keep the capped end timestamps inside the video.
	for i := range flags {
		if flags[i].EndTimestamp != nil && *flags[i].EndTimestamp > duration {
			flags[i].EndTimestamp = ptr(duration)
		}
	}

	transcript := []core.TranscriptSegment{
		{Start: 0, End: at(0.06), Text: "Good morning everyone. I'm thrilled to present our quarterly results today."},
		{Start: at(0.06), End: at(0.25), Text: "Let me start with where we stand against the goals we set in January."},
		{Start: at(0.25), End: at(0.46), Text: "Revenue grew twelve percent, which puts us ahead of plan.", Highlight: core.HighlightMismatch, FlagID: "flag-1"},
		{Start: at(0.46), End: at(0.74), Text: "Look at this data on customer retention. Churn is, um, basically flat.", Highlight: core.HighlightFiller, FlagID: "flag-2"},
		{Start: at(0.74), End: duration, Text: "Slide four covers the full product roadmap for the next two quarters.", FlagID: "flag-3"},
	}

	return &core.AnalysisResult{
		VideoID:         videoID,
		VideoURL:        fmt.Sprintf("/api/videos/%s/stream", videoID),
		DurationSeconds: duration,
		CoherenceScore:  67,
		ScoreTier:       core.TierForScore(67),
		Metrics: core.AnalysisMetrics{
			EyeContact:         62,
			FillerWords:        12,
			Fidgeting:          8,
			SpeakingPace:       156,
			SpeakingPaceTarget: "140-160",
		},
		DissonanceFlags: flags,
		Transcript:      transcript,
		TimelineHeatmap: []core.TimelinePoint{
			{Timestamp: at(0.07), Severity: core.SeverityLow},
			{Timestamp: at(0.25), Severity: core.SeverityHigh},
			{Timestamp: at(0.46), Severity: core.SeverityMedium},
			{Timestamp: at(0.74), Severity: core.SeverityHigh},
		},
		Strengths: []string{
			"Clear voice projection",
			"Logical structure",
			"Good pacing overall",
		},
		Priorities: []string{
			"Reduce nervous fidgeting (8 instances detected)",
			"Increase eye contact with camera (currently 62%, target 80%)",
			"Match facial expressions to emotional language",
		},
		CoachingSummary: "A solid foundation: your structure and projection carry the talk. The biggest win is aligning facial expression with emotional language in the opening minute.",
	}
}

// Sample videos are pre-analyzed and ready for immediate viewing.
type sampleVideo struct {
	Title    string
	Score    int
	Duration float64
}

var sampleVideos = map[string]sampleVideo{
	"sample-1": {Title: "Nervous Student", Score: 42, Duration: 120},
	"sample-2": {Title: "Confident Pitch", Score: 89, Duration: 180},
	"sample-3": {Title: "Mixed Signals", Score: 61, Duration: 150},
}

// SampleIDs lists the available sample videos in a stable order.
func SampleIDs() []string { return []string{"sample-1", "sample-2", "sample-3"} }

// IsSample reports whether videoID names a pre-analyzed sample.
func IsSample(videoID string) bool {
	_, ok := sampleVideos[videoID]
	return ok
}

// SampleInfo returns display info for one sample.
func SampleInfo(videoID string) (core.SampleVideoInfo, bool) {
	s, ok := sampleVideos[videoID]
	if !ok {
		return core.SampleVideoInfo{}, false
	}
	return core.SampleVideoInfo{ID: videoID, Title: s.Title, Score: s.Score, Duration: s.Duration, IsCached: true}, true
}

// SampleResult builds the cached analysis for a sample video.
func SampleResult(videoID string) (*core.AnalysisResult, bool) {
	s, ok := sampleVideos[videoID]
	if !ok {
		return nil, false
	}
	result := GenerateResult(videoID, s.Duration)
	result.CoherenceScore = s.Score
	result.ScoreTier = core.TierForScore(s.Score)
	return result, true
}

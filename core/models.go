package core

import (
	"fmt"
	"time"
)

// ========== enums ==========

// JobStatus is the lifecycle of a processing job as seen by pollers.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusError      JobStatus = "error"
)

// Terminal reports whether polling should stop at this status.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Rank orders severities: high > medium > low. Unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// DissonanceType is the closed set of flag categories the analyzer emits.
type DissonanceType string

const (
	EmotionalMismatch DissonanceType = "EMOTIONAL_MISMATCH"
	MissingGesture    DissonanceType = "MISSING_GESTURE"
	PacingMismatch    DissonanceType = "PACING_MISMATCH"
	EyeContactLoss    DissonanceType = "EYE_CONTACT_LOSS"
	FillerWords       DissonanceType = "FILLER_WORDS"
	PositiveMoment    DissonanceType = "POSITIVE_MOMENT"
)

type ScoreTier string

const (
	TierNeedsWork ScoreTier = "Needs Work"
	TierGoodStart ScoreTier = "Good Start"
	TierStrong    ScoreTier = "Strong"
)

// TierForScore maps a 0-100 coherence score to its tier.
func TierForScore(score int) ScoreTier {
	switch {
	case score >= 76:
		return TierStrong
	case score >= 51:
		return TierGoodStart
	default:
		return TierNeedsWork
	}
}

// ========== analysis result ==========

type AnalysisMetrics struct {
	EyeContact         int    `json:"eyeContact"`
	FillerWords        int    `json:"fillerWords"`
	Fidgeting          int    `json:"fidgeting"`
	SpeakingPace       int    `json:"speakingPace"`
	SpeakingPaceTarget string `json:"speakingPaceTarget,omitempty"`
}

// DissonanceFlag marks a moment where delivery and content conflict.
// EndTimestamp is optional; consumers treat absent as Timestamp+10s.
type DissonanceFlag struct {
	ID             string         `json:"id"`
	Timestamp      float64        `json:"timestamp"`
	EndTimestamp   *float64       `json:"endTimestamp,omitempty"`
	Type           DissonanceType `json:"type"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	Coaching       string         `json:"coaching"`
	VisualEvidence string         `json:"visualEvidence,omitempty"`
	VerbalEvidence string         `json:"verbalEvidence,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
}

type TimelinePoint struct {
	Timestamp float64  `json:"timestamp"`
	Severity  Severity `json:"severity"`
}

// Highlight classification for transcript rendering.
type Highlight string

const (
	HighlightNone     Highlight = ""
	HighlightFiller   Highlight = "filler"
	HighlightMismatch Highlight = "mismatch"
)

type TranscriptSegment struct {
	Text       string    `json:"text"`
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Confidence *float64  `json:"confidence,omitempty"`
	Highlight  Highlight `json:"highlight,omitempty"`
	FlagID     string    `json:"flagId,omitempty"`
}

// AnalysisResult is the complete analysis for one video.
// Returned by GET /api/videos/{id}/results.
type AnalysisResult struct {
	VideoID         string              `json:"videoId"`
	VideoURL        string              `json:"videoUrl"`
	DurationSeconds float64             `json:"durationSeconds"`
	CoherenceScore  int                 `json:"coherenceScore"`
	ScoreTier       ScoreTier           `json:"scoreTier"`
	Metrics         AnalysisMetrics     `json:"metrics"`
	DissonanceFlags []DissonanceFlag    `json:"dissonanceFlags"`
	TimelineHeatmap []TimelinePoint     `json:"timelineHeatmap"`
	Strengths       []string            `json:"strengths"`
	Priorities      []string            `json:"priorities"`
	Transcript      []TranscriptSegment `json:"transcript,omitempty"`
	CoachingSummary string              `json:"coachingSummary,omitempty"`
}

// Validate enforces the result invariants: flags inside [0, duration],
// metrics non-negative, score within 0-100.
func (r *AnalysisResult) Validate() error {
	if r.DurationSeconds < 0 {
		return fmt.Errorf("duration %.2f is negative", r.DurationSeconds)
	}
	if r.CoherenceScore < 0 || r.CoherenceScore > 100 {
		return fmt.Errorf("coherence score %d outside 0-100", r.CoherenceScore)
	}
	if r.Metrics.EyeContact < 0 || r.Metrics.FillerWords < 0 || r.Metrics.Fidgeting < 0 || r.Metrics.SpeakingPace < 0 {
		return fmt.Errorf("metrics must be non-negative")
	}
	for _, f := range r.DissonanceFlags {
		if f.Timestamp < 0 || f.Timestamp > r.DurationSeconds {
			return fmt.Errorf("flag %s at %.2f outside [0, %.2f]", f.ID, f.Timestamp, r.DurationSeconds)
		}
	}
	return nil
}

// ========== transient job state ==========

// StatusResponse is the polled processing state for one job.
// Returned by GET /api/videos/{id}/status.
type StatusResponse struct {
	VideoID    string    `json:"videoId"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Stage      string    `json:"stage"`
	EtaSeconds *int      `json:"etaSeconds,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// UploadResponse is returned by POST /api/videos/upload.
type UploadResponse struct {
	VideoID         string  `json:"videoId"`
	Status          string  `json:"status"`
	EstimatedTime   int     `json:"estimatedTime"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// VideoMeta is the server-side record of an uploaded file.
type VideoMeta struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Duration    float64   `json:"duration"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// ========== moment search ==========

type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"topK"`
}

// Hit is one scored transcript moment.
type Hit struct {
	Score float64 `json:"score"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type SearchResponse struct {
	VideoID string `json:"videoId"`
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Hits    []Hit  `json:"hits"`
}

// ========== samples ==========

type SampleVideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Score    int     `json:"score"`
	Duration float64 `json:"duration"`
	IsCached bool    `json:"isCached"`
}

type SampleVideosListResponse struct {
	Samples   []SampleVideoInfo `json:"samples"`
	AllCached bool              `json:"allCached"`
}

type SampleVideoResponse struct {
	VideoID string `json:"videoId"`
	Status  string `json:"status"`
}

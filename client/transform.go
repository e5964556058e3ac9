package client

import (
	"context"
	"fmt"
	"sort"

	"coherence/analysis"
	"coherence/core"
)

// ResultView is the dashboard's working copy of an analysis: the server DTO
// plus display defaults and session-local flag state. Dismissals and review
// marks never leave the session.
type ResultView struct {
	*core.AnalysisResult

	// Title and Trend are display fields the backend does not track; the
	// view supplies defaults.
	Title string
	Trend string
	// Notice carries a user-facing message when the view was built from
	// fallback data instead of a live fetch.
	Notice string

	dismissed map[string]bool
	reviewed  map[string]bool
}

func NewResultView(result *core.AnalysisResult) *ResultView {
	return &ResultView{
		AnalysisResult: result,
		Title:          "Your Presentation",
		Trend:          "First recorded session",
		dismissed:      make(map[string]bool),
		reviewed:       make(map[string]bool),
	}
}

// Dismiss hides a flag for the rest of the session.
func (v *ResultView) Dismiss(flagID string) { v.dismissed[flagID] = true }

func (v *ResultView) IsDismissed(flagID string) bool { return v.dismissed[flagID] }

// MarkReviewed records that the user has opened a flag's coaching card.
func (v *ResultView) MarkReviewed(flagID string) { v.reviewed[flagID] = true }

func (v *ResultView) IsReviewed(flagID string) bool { return v.reviewed[flagID] }

// ActiveFlags returns the flags still shown on the timeline, in the result's
// original order.
func (v *ResultView) ActiveFlags() []core.DissonanceFlag {
	active := make([]core.DissonanceFlag, 0, len(v.DissonanceFlags))
	for _, f := range v.DissonanceFlags {
		if !v.dismissed[f.ID] {
			active = append(active, f)
		}
	}
	return active
}

// ReviewedCount reports coaching progress for the session summary.
func (v *ResultView) ReviewedCount() int { return len(v.reviewed) }

// Transcript returns the segments to render, synthesizing them from the
// flags when the backend omitted a transcript.
func (v *ResultView) Transcript() []core.TranscriptSegment {
	if len(v.AnalysisResult.Transcript) > 0 {
		return v.AnalysisResult.Transcript
	}
	return SynthesizeTranscript(v.AnalysisResult)
}

// SynthesizeTranscript builds a minimal transcript from the flag evidence:
// an intro segment at t=0 followed by one segment per flag, ascending by
// timestamp.
func SynthesizeTranscript(result *core.AnalysisResult) []core.TranscriptSegment {
	flags := make([]core.DissonanceFlag, len(result.DissonanceFlags))
	copy(flags, result.DissonanceFlags)
	sort.SliceStable(flags, func(i, j int) bool { return flags[i].Timestamp < flags[j].Timestamp })

	segments := make([]core.TranscriptSegment, 0, len(flags)+1)
	introEnd := result.DurationSeconds
	if len(flags) > 0 && flags[0].Timestamp < introEnd {
		introEnd = flags[0].Timestamp
	}
	segments = append(segments, core.TranscriptSegment{
		Start: 0,
		End:   introEnd,
		Text:  "Presentation begins.",
	})

	for i, f := range flags {
		end := result.DurationSeconds
		if i+1 < len(flags) {
			end = flags[i+1].Timestamp
		}
		if f.EndTimestamp != nil && *f.EndTimestamp < end {
			end = *f.EndTimestamp
		}
		text := f.VerbalEvidence
		if text == "" {
			text = f.Description
		}
		highlight := core.HighlightMismatch
		if f.Type == core.FillerWords {
			highlight = core.HighlightFiller
		}
		segments = append(segments, core.TranscriptSegment{
			Start:     f.Timestamp,
			End:       end,
			Text:      text,
			Highlight: highlight,
			FlagID:    f.ID,
		})
	}
	return segments
}

// ResultsFetcher is the slice of Client the fallback loader needs.
type ResultsFetcher interface {
	Results(ctx context.Context, videoID string) (*core.AnalysisResult, error)
}

// FetchResultsWithFallback loads the analysis for the dashboard. The screen
// never renders blank: when the fetch fails, the bundled demo dataset is
// shown with a notice explaining what happened.
func FetchResultsWithFallback(ctx context.Context, fetcher ResultsFetcher, videoID string) *ResultView {
	result, err := fetcher.Results(ctx, videoID)
	if err == nil {
		return NewResultView(result)
	}

	apiErr := core.AsAPIError(err)
	view := NewResultView(analysis.GenerateResult(videoID, 183))
	view.Notice = fmt.Sprintf("Showing demo data: %s", apiErr.Message)
	return view
}

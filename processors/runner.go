// Package processors drives an uploaded video through analysis: staged
// progress for pollers while the provider works, then durable results and a
// terminal status. One goroutine per job; no pool, nothing to schedule.
package processors

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"coherence/analysis"
	"coherence/core"
	"coherence/metrics"
	"coherence/storage"
)

type Runner struct {
	jobs     *storage.JobStore
	results  storage.ResultStore
	moments  storage.MomentIndex
	provider analysis.Provider
	logger   *logrus.Logger

	// StageInterval paces the simulated progress stages while the provider
	// works. Tests shrink it.
	StageInterval time.Duration
}

func NewRunner(jobs *storage.JobStore, results storage.ResultStore, moments storage.MomentIndex, provider analysis.Provider, logger *logrus.Logger) *Runner {
	return &Runner{
		jobs:          jobs,
		results:       results,
		moments:       moments,
		provider:      provider,
		logger:        logger,
		StageInterval: 2 * time.Second,
	}
}

// Process runs one job to its terminal state. The terminal status is written
// exactly once, and always after results are durably stored, so a poller
// that observes "complete" can fetch results immediately. Cancelling ctx
// stops the job without further writes.
func (r *Runner) Process(ctx context.Context, meta core.VideoMeta) {
	log := r.logger.WithField("video_id", meta.ID)
	start := time.Now()
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	type outcome struct {
		result *core.AnalysisResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := r.provider.Analyze(ctx, meta)
		done <- outcome{result, err}
	}()

	// Walk the display stages while the provider works. The last stage
	// holds until the provider finishes; completion never outruns storage.
	stages := analysis.PipelineStages
	stageIdx := 0
	r.setStage(meta.ID, stages[stageIdx])

	ticker := time.NewTicker(r.StageInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("job cancelled")
			return
		case <-ticker.C:
			if stageIdx < len(stages)-1 {
				stageIdx++
				r.setStage(meta.ID, stages[stageIdx])
			}
		case out := <-done:
			if out.err != nil {
				log.WithError(out.err).Error("analysis failed")
				r.fail(meta.ID, out.err)
				metrics.ProcessingDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
				return
			}
			if err := r.complete(ctx, meta.ID, out.result); err != nil {
				log.WithError(err).Error("failed to store analysis result")
				r.fail(meta.ID, err)
				metrics.ProcessingDurationSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
				return
			}
			log.WithField("score", out.result.CoherenceScore).Info("analysis complete")
			metrics.ProcessingDurationSeconds.WithLabelValues("complete").Observe(time.Since(start).Seconds())
			return
		}
	}
}

func (r *Runner) setStage(videoID string, stage analysis.Stage) {
	eta := stage.EtaSeconds
	r.jobs.SetStatus(core.StatusResponse{
		VideoID:    videoID,
		Status:     core.StatusProcessing,
		Progress:   stage.Progress,
		Stage:      stage.Label,
		EtaSeconds: &eta,
	})
}

func (r *Runner) complete(ctx context.Context, videoID string, result *core.AnalysisResult) error {
	if err := r.results.Save(ctx, result); err != nil {
		return err
	}
	if len(result.Transcript) > 0 {
		n := r.moments.Index(videoID, result.Transcript)
		r.logger.WithFields(logrus.Fields{"video_id": videoID, "segments": n, "backend": r.moments.Name()}).Debug("transcript indexed")
	}
	r.jobs.SetStatus(core.StatusResponse{
		VideoID:  videoID,
		Status:   core.StatusComplete,
		Progress: analysis.FinalStage.Progress,
		Stage:    analysis.FinalStage.Label,
	})
	return nil
}

func (r *Runner) fail(videoID string, err error) {
	r.jobs.SetStatus(core.StatusResponse{
		VideoID:  videoID,
		Status:   core.StatusError,
		Progress: 0,
		Stage:    "Processing failed",
		Error:    err.Error(),
	})
}

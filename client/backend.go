package client

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"coherence/analysis"
	"coherence/core"
)

// Backend is the data layer behind the upload/poll/results flow. The
// concrete strategy is selected once at startup; call sites never check
// which mode they are running in.
type Backend interface {
	Upload(ctx context.Context, filename, contentType string, size int64, content io.Reader) (*core.UploadResponse, error)
	Status(ctx context.Context, videoID string) (*core.StatusResponse, error)
	Results(ctx context.Context, videoID string) (*core.AnalysisResult, error)
}

// SelectBackend resolves the data-layer strategy: "mock" runs fully
// in-process for development without a server, anything else talks to the
// live API at baseURL.
func SelectBackend(mode, baseURL string, logger *logrus.Logger) Backend {
	if mode == "mock" {
		return NewMockBackend()
	}
	return New(baseURL, logger)
}

// MockBackend simulates the whole upload/process/results lifecycle in
// memory: uploads are accepted after the shared validation, jobs walk the
// pipeline stages over Latency, and results come from the demo dataset.
type MockBackend struct {
	// Latency is the simulated end-to-end processing time.
	Latency time.Duration

	mu   sync.Mutex
	jobs map[string]*mockJob
}

type mockJob struct {
	started  time.Time
	duration float64
}

func NewMockBackend() *MockBackend {
	return &MockBackend{
		Latency: 10 * time.Second,
		jobs:    make(map[string]*mockJob),
	}
}

func (b *MockBackend) Upload(_ context.Context, _, contentType string, size int64, content io.Reader) (*core.UploadResponse, error) {
	if apiErr := core.ValidateVideoUpload(contentType, size); apiErr != nil {
		return nil, apiErr
	}
	if content != nil {
		io.Copy(io.Discard, content)
	}

	duration := float64(size) / (1 << 20)
	if duration < 10 {
		duration = 10
	}
	videoID := core.NewID()
	b.mu.Lock()
	b.jobs[videoID] = &mockJob{started: time.Now(), duration: duration}
	b.mu.Unlock()

	return &core.UploadResponse{
		VideoID:         videoID,
		Status:          string(core.StatusProcessing),
		EstimatedTime:   45,
		DurationSeconds: duration,
	}, nil
}

func (b *MockBackend) Status(_ context.Context, videoID string) (*core.StatusResponse, error) {
	job, err := b.job(videoID)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(job.started)
	if elapsed >= b.Latency {
		return &core.StatusResponse{
			VideoID:  videoID,
			Status:   core.StatusComplete,
			Progress: analysis.FinalStage.Progress,
			Stage:    analysis.FinalStage.Label,
		}, nil
	}

	stages := analysis.PipelineStages
	idx := int(float64(len(stages)) * float64(elapsed) / float64(b.Latency))
	if idx >= len(stages) {
		idx = len(stages) - 1
	}
	eta := stages[idx].EtaSeconds
	return &core.StatusResponse{
		VideoID:    videoID,
		Status:     core.StatusProcessing,
		Progress:   stages[idx].Progress,
		Stage:      stages[idx].Label,
		EtaSeconds: &eta,
	}, nil
}

func (b *MockBackend) Results(_ context.Context, videoID string) (*core.AnalysisResult, error) {
	if result, ok := analysis.SampleResult(videoID); ok {
		return result, nil
	}
	job, err := b.job(videoID)
	if err != nil {
		return nil, err
	}
	if time.Since(job.started) < b.Latency {
		return nil, &core.APIError{
			Message:   "Analysis is still in progress. Please wait.",
			Code:      core.CodeNotComplete,
			Retryable: true,
		}
	}
	return analysis.GenerateResult(videoID, job.duration), nil
}

func (b *MockBackend) job(videoID string) (*mockJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[videoID]
	if !ok {
		return nil, &core.APIError{
			Message: "Video " + videoID + " not found.",
			Code:    core.CodeNotFound,
		}
	}
	return job, nil
}

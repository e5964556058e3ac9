package processors

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"coherence/analysis"
	"coherence/core"
	"coherence/storage"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type scriptedProvider struct {
	result *core.AnalysisResult
	err    error
	delay  time.Duration
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Analyze(ctx context.Context, meta core.VideoMeta) (*core.AnalysisResult, error) {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return p.result, p.err
}

func newRunner(p analysis.Provider) (*Runner, *storage.JobStore, storage.ResultStore) {
	jobs := storage.NewJobStore()
	results := storage.NewMemoryResultStore()
	r := NewRunner(jobs, results, storage.NewMemoryMomentIndex(), p, quietLogger())
	r.StageInterval = time.Millisecond
	return r, jobs, results
}

func meta(id string) core.VideoMeta {
	return core.VideoMeta{ID: id, Duration: 120, Path: "/tmp/" + id + ".mp4"}
}

func TestProcessReachesCompleteOnce(t *testing.T) {
	result := analysis.GenerateResult("vid-1", 120)
	r, jobs, results := newRunner(&scriptedProvider{result: result, delay: 20 * time.Millisecond})

	jobs.Register(meta("vid-1"))
	r.Process(context.Background(), meta("vid-1"))

	st, ok := jobs.Status("vid-1")
	if !ok || st.Status != core.StatusComplete {
		t.Fatalf("status = %+v, want complete", st)
	}
	if st.Progress != 100 {
		t.Errorf("terminal progress = %d, want 100", st.Progress)
	}

	// Results were stored before the status flipped.
	got, err := results.Get(context.Background(), "vid-1")
	if err != nil {
		t.Fatalf("results missing after complete status: %v", err)
	}
	if got.VideoID != "vid-1" {
		t.Errorf("stored result for %q", got.VideoID)
	}
}

func TestProcessFailureSurfacesError(t *testing.T) {
	r, jobs, results := newRunner(&scriptedProvider{err: errors.New("analyzer exploded"), delay: 5 * time.Millisecond})

	jobs.Register(meta("vid-1"))
	r.Process(context.Background(), meta("vid-1"))

	st, _ := jobs.Status("vid-1")
	if st.Status != core.StatusError {
		t.Fatalf("status = %s, want error", st.Status)
	}
	if st.Error == "" {
		t.Error("error status should carry a message")
	}
	if _, err := results.Get(context.Background(), "vid-1"); err == nil {
		t.Error("no result should be stored for a failed job")
	}
}

func TestProcessCancellationWritesNothingFurther(t *testing.T) {
	r, jobs, _ := newRunner(&scriptedProvider{result: analysis.GenerateResult("vid-1", 120), delay: time.Hour})

	jobs.Register(meta("vid-1"))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Process(ctx, meta("vid-1"))
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Process did not stop after cancellation")
	}

	st, _ := jobs.Status("vid-1")
	if st.Status.Terminal() {
		t.Errorf("cancelled job must not reach a terminal status, got %s", st.Status)
	}
	before := st
	time.Sleep(20 * time.Millisecond)
	after, _ := jobs.Status("vid-1")
	if after != before {
		t.Errorf("status mutated after teardown: %+v -> %+v", before, after)
	}
}

func TestProcessStagesAdvanceWhileAnalyzing(t *testing.T) {
	r, jobs, _ := newRunner(&scriptedProvider{result: analysis.GenerateResult("vid-1", 120), delay: 50 * time.Millisecond})

	jobs.Register(meta("vid-1"))
	go r.Process(context.Background(), meta("vid-1"))

	time.Sleep(20 * time.Millisecond)
	st, _ := jobs.Status("vid-1")
	if st.Status != core.StatusProcessing && !st.Status.Terminal() {
		t.Errorf("mid-flight status = %s, want processing", st.Status)
	}
	if st.Status == core.StatusProcessing && st.Progress < 10 {
		t.Errorf("mid-flight progress = %d, want at least the first stage", st.Progress)
	}
}

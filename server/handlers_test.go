package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"coherence/analysis"
	"coherence/config"
	"coherence/core"
	"coherence/processors"
	"coherence/storage"
)

func newTestServer(t *testing.T, cfg *config.Config, latency time.Duration) *httptest.Server {
	return newTestServerWith(t, cfg, &analysis.DemoProvider{Latency: latency})
}

func newTestServerWith(t *testing.T, cfg *config.Config, provider analysis.Provider) *httptest.Server {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{AuthMode: "none"}
	}
	cfg.DataDir = t.TempDir()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	jobs := storage.NewJobStore()
	results := storage.NewMemoryResultStore()
	moments := storage.NewMemoryMomentIndex()
	runner := processors.NewRunner(jobs, results, moments, provider, logger)
	runner.StageInterval = time.Millisecond

	srv := NewServer(cfg, jobs, results, moments, provider, runner, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func uploadBody(t *testing.T, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="video"; filename="talk.mp4"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(payload)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func decodeError(t *testing.T, resp *http.Response) *core.APIError {
	t.Helper()
	var apiErr core.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return &apiErr
}

func TestUploadRejectsNonVideo(t *testing.T) {
	ts := newTestServer(t, nil, time.Millisecond)

	body, ct := uploadBody(t, "image/png", []byte("not a video"))
	resp, err := http.Post(ts.URL+"/api/videos/upload", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if apiErr := decodeError(t, resp); apiErr.Code != core.CodeInvalidFormat {
		t.Errorf("code = %s, want %s", apiErr.Code, core.CodeInvalidFormat)
	}
}

func TestUploadPollResultsFlow(t *testing.T) {
	ts := newTestServer(t, nil, 5*time.Millisecond)

	body, ct := uploadBody(t, "video/mp4", bytes.Repeat([]byte("x"), 1024))
	resp, err := http.Post(ts.URL+"/api/videos/upload", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var up core.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&up); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || up.VideoID == "" {
		t.Fatalf("upload failed: status=%d resp=%+v", resp.StatusCode, up)
	}

	deadline := time.Now().Add(2 * time.Second)
	var st core.StatusResponse
	for time.Now().Before(deadline) {
		r, err := http.Get(ts.URL + "/api/videos/" + up.VideoID + "/status")
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		json.NewDecoder(r.Body).Decode(&st)
		r.Body.Close()
		if st.Status.Terminal() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if st.Status != core.StatusComplete {
		t.Fatalf("final status = %+v, want complete", st)
	}

	r, err := http.Get(ts.URL + "/api/videos/" + up.VideoID + "/results")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("results status = %d, want 200", r.StatusCode)
	}
	var result core.AnalysisResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if result.VideoID != up.VideoID {
		t.Errorf("result for %q, want %q", result.VideoID, up.VideoID)
	}
	if err := result.Validate(); err != nil {
		t.Errorf("served result violates invariants: %v", err)
	}
}

func TestResultsBeforeCompleteIs425(t *testing.T) {
	ts := newTestServer(t, nil, time.Hour)

	body, ct := uploadBody(t, "video/mp4", []byte("data"))
	resp, err := http.Post(ts.URL+"/api/videos/upload", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var up core.UploadResponse
	json.NewDecoder(resp.Body).Decode(&up)
	resp.Body.Close()

	r, err := http.Get(ts.URL + "/api/videos/" + up.VideoID + "/results")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusTooEarly {
		t.Fatalf("status = %d, want 425", r.StatusCode)
	}
	apiErr := decodeError(t, r)
	if apiErr.Code != core.CodeNotComplete || !apiErr.Retryable {
		t.Errorf("error = %+v, want retryable %s", apiErr, core.CodeNotComplete)
	}
}

type brokenProvider struct{}

func (brokenProvider) Name() string { return "broken" }

func (brokenProvider) Analyze(context.Context, core.VideoMeta) (*core.AnalysisResult, error) {
	return nil, errors.New("analyzer exploded")
}

func TestFailedJobResultsAre404NotStuckInProgress(t *testing.T) {
	ts := newTestServerWith(t, nil, brokenProvider{})

	body, ct := uploadBody(t, "video/mp4", []byte("data"))
	resp, err := http.Post(ts.URL+"/api/videos/upload", ct, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var up core.UploadResponse
	json.NewDecoder(resp.Body).Decode(&up)
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	var st core.StatusResponse
	for time.Now().Before(deadline) {
		r, err := http.Get(ts.URL + "/api/videos/" + up.VideoID + "/status")
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		json.NewDecoder(r.Body).Decode(&st)
		r.Body.Close()
		if st.Status.Terminal() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if st.Status != core.StatusError {
		t.Fatalf("job status = %+v, want error", st)
	}

	// A permanently failed job must not answer "still in progress".
	r, err := http.Get(ts.URL + "/api/videos/" + up.VideoID + "/results")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if r.StatusCode != http.StatusNotFound {
		t.Errorf("results status = %d, want 404", r.StatusCode)
	}
	if apiErr := decodeError(t, r); apiErr.Code != core.CodeNotFound {
		t.Errorf("results code = %s, want %s", apiErr.Code, core.CodeNotFound)
	}
	r.Body.Close()

	r, err = http.Post(ts.URL+"/api/videos/"+up.VideoID+"/report", "application/json", nil)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusNotFound {
		t.Errorf("report status = %d, want 404", r.StatusCode)
	}
}

func TestUnknownVideoIs404(t *testing.T) {
	ts := newTestServer(t, nil, time.Millisecond)

	for _, path := range []string{"/api/videos/nope/status", "/api/videos/nope/results", "/api/videos/nope/stream"} {
		r, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, r.StatusCode)
		}
	}
}

func TestSamplesAreAlwaysComplete(t *testing.T) {
	ts := newTestServer(t, nil, time.Millisecond)

	r, err := http.Get(ts.URL + "/api/videos/samples")
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	var list core.SampleVideosListResponse
	json.NewDecoder(r.Body).Decode(&list)
	r.Body.Close()
	if len(list.Samples) != 3 || !list.AllCached {
		t.Fatalf("samples list = %+v", list)
	}

	r, err = http.Get(ts.URL + "/api/videos/sample-1/status")
	if err != nil {
		t.Fatalf("sample status: %v", err)
	}
	var st core.StatusResponse
	json.NewDecoder(r.Body).Decode(&st)
	r.Body.Close()
	if st.Status != core.StatusComplete || st.Progress != 100 {
		t.Errorf("sample status = %+v, want complete at 100", st)
	}

	r, err = http.Get(ts.URL + "/api/videos/sample-1/results")
	if err != nil {
		t.Fatalf("sample results: %v", err)
	}
	defer r.Body.Close()
	var result core.AnalysisResult
	json.NewDecoder(r.Body).Decode(&result)
	if result.CoherenceScore != 42 || result.ScoreTier != core.TierNeedsWork {
		t.Errorf("sample-1 = score %d tier %s", result.CoherenceScore, result.ScoreTier)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	ts := newTestServer(t, nil, time.Millisecond)

	r, err := http.Post(ts.URL+"/api/videos/sample-1/search", "application/json", bytes.NewBufferString(`{"query":"  "}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", r.StatusCode)
	}
}

func TestSearchSampleLazilyIndexes(t *testing.T) {
	ts := newTestServer(t, nil, time.Millisecond)

	r, err := http.Post(ts.URL+"/api/videos/sample-1/search", "application/json", bytes.NewBufferString(`{"query":"customer retention churn"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", r.StatusCode)
	}
	var sr core.SearchResponse
	if err := json.NewDecoder(r.Body).Decode(&sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sr.Hits) == 0 {
		t.Fatal("expected hits from the sample transcript")
	}
	if sr.Answer == "" {
		t.Error("expected a synthesized answer")
	}
}

func TestReportForSampleIsPDF(t *testing.T) {
	ts := newTestServer(t, nil, time.Millisecond)

	r, err := http.Post(ts.URL+"/api/videos/sample-2/report", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", r.StatusCode)
	}
	data, _ := io.ReadAll(r.Body)
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Error("report body is not a PDF")
	}
}

func TestTokenAuthRejectsMissingBearer(t *testing.T) {
	cfg := &config.Config{AuthMode: "token", AuthTokens: []string{"secret-1"}}
	ts := newTestServer(t, cfg, time.Millisecond)

	r, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", r.StatusCode)
	}
	if apiErr := decodeError(t, r); apiErr.Code != core.CodeUnauthorized {
		t.Errorf("code = %s, want %s", apiErr.Code, core.CodeUnauthorized)
	}
	r.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	req.Header.Set("Authorization", "Bearer secret-1")
	r, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Errorf("status with valid token = %d, want 200", r.StatusCode)
	}
}

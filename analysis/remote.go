package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coherence/core"
)

// RemoteProvider delegates analysis to an external analyzer service. The
// pipeline internals (vision, transcription, coaching synthesis) live there;
// this side only ships the job and validates what comes back.
type RemoteProvider struct {
	baseURL string
	httpc   *http.Client
}

func NewRemoteProvider(baseURL string) *RemoteProvider {
	return &RemoteProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Minute},
	}
}

func (p *RemoteProvider) Name() string { return "remote" }

type analyzeRequest struct {
	VideoID         string  `json:"videoId"`
	VideoPath       string  `json:"videoPath"`
	DurationSeconds float64 `json:"durationSeconds"`
}

func (p *RemoteProvider) Analyze(ctx context.Context, meta core.VideoMeta) (*core.AnalysisResult, error) {
	payload, err := json.Marshal(analyzeRequest{
		VideoID:         meta.ID,
		VideoPath:       meta.Path,
		DurationSeconds: meta.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read analyzer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.DecodeAPIError(resp.StatusCode, body)
	}

	var result core.AnalysisResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}
	result.VideoID = meta.ID
	if result.VideoURL == "" {
		result.VideoURL = fmt.Sprintf("/api/videos/%s/stream", meta.ID)
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer returned invalid result: %w", err)
	}
	return &result, nil
}

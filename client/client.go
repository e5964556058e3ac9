// Package client is the Go consumer of the coaching API: upload, status
// polling, results retrieval and the view-level transforms the dashboard
// renders from. Every failure surfaces as a *core.APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"coherence/core"
)

type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *logrus.Logger
}

func New(baseURL string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 5 * time.Minute},
		logger:  logger,
	}
}

// Upload validates the file locally, then ships it as a multipart request.
// A validation failure returns before any network traffic.
func (c *Client) Upload(ctx context.Context, filename, contentType string, size int64, content io.Reader) (*core.UploadResponse, error) {
	if apiErr := core.ValidateVideoUpload(contentType, size); apiErr != nil {
		return nil, apiErr
	}

	// Stream the multipart body through a pipe so a file near the 500 MiB
	// ceiling is never buffered in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/videos/upload", pr)
	if err != nil {
		pr.Close()
		return nil, core.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp core.UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	c.logger.WithField("video_id", resp.VideoID).Debug("upload accepted")
	return &resp, nil
}

// Status fetches the polled processing state for one job.
func (c *Client) Status(ctx context.Context, videoID string) (*core.StatusResponse, error) {
	var st core.StatusResponse
	if err := c.getJSON(ctx, "/api/videos/"+videoID+"/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Results fetches the completed analysis.
func (c *Client) Results(ctx context.Context, videoID string) (*core.AnalysisResult, error) {
	var result core.AnalysisResult
	if err := c.getJSON(ctx, "/api/videos/"+videoID+"/results", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Samples lists the pre-analyzed sample videos.
func (c *Client) Samples(ctx context.Context) (*core.SampleVideosListResponse, error) {
	var list core.SampleVideosListResponse
	if err := c.getJSON(ctx, "/api/videos/samples", &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// LoadSample selects a sample video for immediate viewing.
func (c *Client) LoadSample(ctx context.Context, sampleID string) (*core.SampleVideoResponse, error) {
	var resp core.SampleVideoResponse
	if err := c.getJSON(ctx, "/api/videos/samples/"+sampleID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search asks a question about the video's transcript moments.
func (c *Client) Search(ctx context.Context, videoID, query string, topK int) (*core.SearchResponse, error) {
	payload, err := json.Marshal(core.SearchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/videos/"+videoID+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp core.SearchResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Report downloads the PDF report for a completed analysis.
func (c *Client) Report(ctx context.Context, videoID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/videos/"+videoID+"/report", nil)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewNetworkError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.DecodeAPIError(resp.StatusCode, body)
	}
	if len(body) == 0 {
		return nil, core.NewReportError("Report generation failed. Please try again.")
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return core.NewNetworkError(err)
	}
	return c.do(req, out)
}

// do executes the request and normalizes every failure mode: transport
// errors become retryable network errors, non-2xx bodies are decoded into
// the standard error shape.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return core.NewNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return core.NewNetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return core.DecodeAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.NewNetworkError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

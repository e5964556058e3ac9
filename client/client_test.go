package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"coherence/core"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestUploadRejectsInvalidFormatWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	c := New(ts.URL, quietLogger())
	_, err := c.Upload(context.Background(), "pic.png", "image/png", 100, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected a validation rejection")
	}
	apiErr := core.AsAPIError(err)
	if apiErr.Code != core.CodeInvalidFormat {
		t.Errorf("code = %s, want %s", apiErr.Code, core.CodeInvalidFormat)
	}
	if calls.Load() != 0 {
		t.Errorf("made %d network calls for an invalid file, want 0", calls.Load())
	}
}

func TestUploadRejectsOversizeWithoutNetwork(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	c := New(ts.URL, quietLogger())
	_, err := c.Upload(context.Background(), "big.mp4", "video/mp4", core.MaxUploadBytes+1, strings.NewReader("x"))
	apiErr := core.AsAPIError(err)
	if apiErr == nil || apiErr.Code != core.CodeVideoTooLarge {
		t.Fatalf("error = %v, want %s", err, core.CodeVideoTooLarge)
	}
	if calls.Load() != 0 {
		t.Errorf("made %d network calls for an oversize file, want 0", calls.Load())
	}
}

func TestUploadSendsMultipartOnce(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("server could not parse multipart body: %v", err)
		}
		file, header, err := r.FormFile("video")
		if err != nil {
			t.Errorf("missing video field: %v", err)
		} else {
			file.Close()
			if header.Header.Get("Content-Type") != "video/mp4" {
				t.Errorf("part content type = %s", header.Header.Get("Content-Type"))
			}
		}
		core.WriteJSON(w, http.StatusOK, core.UploadResponse{VideoID: "vid-9", Status: "queued", EstimatedTime: 45})
	}))
	defer ts.Close()

	c := New(ts.URL, quietLogger())
	resp, err := c.Upload(context.Background(), "talk.mp4", "video/mp4", 4, bytes.NewReader([]byte("data")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if resp.VideoID != "vid-9" {
		t.Errorf("video id = %s", resp.VideoID)
	}
	if calls.Load() != 1 {
		t.Errorf("made %d calls, want 1", calls.Load())
	}
}

func TestUploadStreamsBodyWithoutBuffering(t *testing.T) {
	const payloadSize = 8 << 20
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A streamed pipe body has no preset length; a pre-buffered one would.
		if r.ContentLength > 0 {
			t.Errorf("request carries Content-Length %d, want a streamed body", r.ContentLength)
		}
		file, _, err := r.FormFile("video")
		if err != nil {
			t.Errorf("parse streamed multipart: %v", err)
			return
		}
		defer file.Close()
		n, _ := io.Copy(io.Discard, file)
		if n != payloadSize {
			t.Errorf("received %d bytes, want %d", n, payloadSize)
		}
		core.WriteJSON(w, http.StatusOK, core.UploadResponse{VideoID: "vid-1", Status: "processing"})
	}))
	defer ts.Close()

	c := New(ts.URL, quietLogger())
	payload := io.LimitReader(neverEnding('x'), payloadSize)
	if _, err := c.Upload(context.Background(), "big.mp4", "video/mp4", payloadSize, payload); err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

type neverEnding byte

func (b neverEnding) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}

func TestErrorBodyIsHonored(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		core.WriteError(w, http.StatusTooEarly, &core.APIError{
			Message:   "Analysis is still in progress. Please wait.",
			Code:      core.CodeNotComplete,
			Retryable: true,
		})
	}))
	defer ts.Close()

	c := New(ts.URL, quietLogger())
	_, err := c.Results(context.Background(), "vid-1")
	apiErr := core.AsAPIError(err)
	if apiErr.Code != core.CodeNotComplete || !apiErr.Retryable {
		t.Errorf("error = %+v, want retryable %s", apiErr, core.CodeNotComplete)
	}
}

func TestMalformedErrorBodyFallsBackToStatusClass(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer ts.Close()

	c := New(ts.URL, quietLogger())
	_, err := c.Status(context.Background(), "vid-1")
	apiErr := core.AsAPIError(err)
	if apiErr.Code != core.CodeInternal || !apiErr.Retryable {
		t.Errorf("error = %+v, want retryable %s for a 502", apiErr, core.CodeInternal)
	}
}

func TestTransportFailureIsRetryableNetworkError(t *testing.T) {
	c := New("http://127.0.0.1:1", quietLogger())
	_, err := c.Status(context.Background(), "vid-1")
	if err == nil {
		t.Fatal("expected a transport failure")
	}
	var apiErr *core.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %T is not an APIError", err)
	}
	if apiErr.Code != core.CodeNetwork || !apiErr.Retryable {
		t.Errorf("error = %+v, want retryable %s", apiErr, core.CodeNetwork)
	}
}

package storage

import (
	"os"
	"path/filepath"
	"sync"

	"coherence/core"
)

// JobStore holds transient job state: upload metadata and the polled status.
// Status is created at upload, mutated only by the job runner, and read by
// the status endpoint until it reaches a terminal value.
type JobStore struct {
	mu     sync.RWMutex
	meta   map[string]core.VideoMeta
	status map[string]core.StatusResponse
}

func NewJobStore() *JobStore {
	return &JobStore{
		meta:   make(map[string]core.VideoMeta),
		status: make(map[string]core.StatusResponse),
	}
}

// Register records a fresh upload and its initial queued status.
func (s *JobStore) Register(meta core.VideoMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[meta.ID] = meta
	eta := 45
	s.status[meta.ID] = core.StatusResponse{
		VideoID:    meta.ID,
		Status:     core.StatusQueued,
		Progress:   0,
		Stage:      "Queued for processing...",
		EtaSeconds: &eta,
	}
}

// SetStatus updates a job's polled state. A terminal status is written at
// most once: later writes against a terminal job are dropped so a slow
// stage update can never resurrect a finished job. Returns false when the
// write was dropped.
func (s *JobStore) SetStatus(status core.StatusResponse) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.status[status.VideoID]; ok && cur.Status.Terminal() {
		return false
	}
	s.status[status.VideoID] = status
	return true
}

// Status returns the current polled state for a job.
func (s *JobStore) Status(videoID string) (core.StatusResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.status[videoID]
	return st, ok
}

// Meta returns the upload record for a video.
func (s *JobStore) Meta(videoID string) (core.VideoMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[videoID]
	return m, ok
}

// VideoPath resolves the playable file for a video: the uploaded file when
// known, otherwise a sample file sitting in the data root.
func (s *JobStore) VideoPath(videoID string, dataDir string) (string, bool) {
	s.mu.RLock()
	m, ok := s.meta[videoID]
	s.mu.RUnlock()
	if ok {
		if _, err := os.Stat(m.Path); err == nil {
			return m.Path, true
		}
	}
	for _, ext := range []string{".mp4", ".mov", ".webm"} {
		p := filepath.Join(dataDir, "videos", videoID+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

package server

import (
	"os/exec"
	"strconv"
	"strings"
)

// probeDuration reads the container duration with ffprobe. Returns 0 when
// ffprobe is missing or the file has no duration; callers fall back to an
// estimate.
func probeDuration(path string) float64 {
	cmd := exec.Command("ffprobe", "-v", "quiet", "-show_entries", "format=duration", "-of", "csv=p=0", path)
	out, err := cmd.Output()
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// estimateDuration guesses a duration from file size when probing fails,
// assuming roughly 1 MiB per second of typical presentation footage.
func estimateDuration(sizeBytes int64) float64 {
	d := float64(sizeBytes) / (1 << 20)
	if d < 10 {
		d = 10
	}
	return d
}

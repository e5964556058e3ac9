package core

import "fmt"

// MaxUploadBytes is the upload size ceiling (500 MiB).
const MaxUploadBytes int64 = 500 * 1024 * 1024

// allowedVideoTypes is the closed set of accepted upload MIME types.
var allowedVideoTypes = map[string]string{
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
	"video/x-m4v":     ".m4v",
}

// ValidateVideoUpload gates an upload on declared media type and byte size.
// Both the client (before any network call) and the server (on receipt) run
// the same checks. A nil return means the upload is acceptable.
func ValidateVideoUpload(contentType string, sizeBytes int64) *APIError {
	if _, ok := allowedVideoTypes[contentType]; !ok {
		return &APIError{
			Message:   fmt.Sprintf("Invalid video format: %s. Please use MP4, MOV, or WebM.", contentType),
			Code:      CodeInvalidFormat,
			Retryable: true,
		}
	}
	if sizeBytes > MaxUploadBytes {
		return &APIError{
			Message:   "Video file is too large. Maximum size is 500MB.",
			Code:      CodeVideoTooLarge,
			Retryable: true,
		}
	}
	return nil
}

// ExtensionForType returns the canonical file extension for an accepted
// upload MIME type, defaulting to .mp4.
func ExtensionForType(contentType string) string {
	if ext, ok := allowedVideoTypes[contentType]; ok {
		return ext
	}
	return ".mp4"
}

// ContentTypeForExtension maps a stored file extension back to a playable
// media type for streaming.
func ContentTypeForExtension(ext string) string {
	for ct, e := range allowedVideoTypes {
		if e == ext {
			return ct
		}
	}
	return "video/mp4"
}

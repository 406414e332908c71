package pipeline

import "strings"

// extForMime maps a driver's reported MIME type to a file extension,
// defaulting conservatively when the type is unfamiliar.
func extForMime(mimeType, fallback string) string {
	switch {
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "jpeg"), strings.Contains(mimeType, "jpg"):
		return ".jpg"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return ".mp3"
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	default:
		return fallback
	}
}

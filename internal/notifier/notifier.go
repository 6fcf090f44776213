// Package notifier delivers rendered cards and media files to chat groups.
package notifier

import (
	"context"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pauljones0/feed-relay/internal/models"
)

// ErrUnsupportedMedia marks a file whose extension is neither a known image
// nor a known video type.
var ErrUnsupportedMedia = errors.New("unrecognized media type")

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}
	videoExts = map[string]bool{".mp4": true, ".mkv": true, ".avi": true, ".mov": true}
)

// ClassifyFile decides how a local file is delivered, by extension. It
// returns "" for anything else.
func ClassifyFile(path string) models.MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExts[ext]:
		return models.MediaImage
	case videoExts[ext]:
		return models.MediaVideo
	default:
		return ""
	}
}

// retryBackoff returns how long to wait before retrying resp, or 0 when the
// status is not worth retrying.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
		return time.Duration(math.Pow(2, float64(attempt))) * time.Second
	case resp.StatusCode >= 500:
		return time.Duration(math.Pow(2, float64(attempt))) * time.Second
	default:
		return 0
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

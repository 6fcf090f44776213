package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pauljones0/feed-relay/internal/dialect"
	"github.com/pauljones0/feed-relay/internal/util"
)

// ErrSkippedProfileImage is returned instead of a path when a content-media
// request points at a profile image. It is not a failure.
var ErrSkippedProfileImage = errors.New("skipped profile image")

// Purpose tells the acquirer which call site a request comes from.
type Purpose int

const (
	PurposeContent Purpose = iota
	PurposeAvatar
)

const (
	downloadTimeout = 15 * time.Second
	userAgent       = "Mozilla/5.0"
)

// DefaultRetryPolicy is three attempts one second apart.
var DefaultRetryPolicy = util.RetryPolicy{MaxAttempts: 3, Backoff: util.ConstantBackoff(time.Second)}

// Acquirer downloads media and avatars with bounded retry. Files are named
// deterministically, so an existing destination is a cache hit.
type Acquirer struct {
	httpClient  *http.Client
	policy      util.RetryPolicy
	dialect     dialect.Dialect
	downloadDir string
	now         func() time.Time
}

func NewAcquirer(d dialect.Dialect, downloadDir string, policy util.RetryPolicy) *Acquirer {
	return &Acquirer{
		httpClient: &http.Client{
			Timeout: downloadTimeout,
		},
		policy:      policy,
		dialect:     d,
		downloadDir: downloadDir,
		now:         time.Now,
	}
}

// MediaPath is where content media from url is stored for owner:
// <downloadDir>/<owner>/<YYYYMMDD>_<basename>.
func (a *Acquirer) MediaPath(url, owner string) (string, error) {
	base := util.MediaBaseName(url, a.dialect.MediaFormatParam)
	if base == "" {
		return "", fmt.Errorf("no file name in media URL %s", url)
	}
	return filepath.Join(a.downloadDir, owner, a.now().Format("20060102")+"_"+base), nil
}

// AcquireMedia fetches one content media file into owner's download folder.
func (a *Acquirer) AcquireMedia(ctx context.Context, url, owner string) (string, error) {
	dest, err := a.MediaPath(url, owner)
	if err != nil {
		return "", err
	}
	return a.Acquire(ctx, url, dest, PurposeContent)
}

// Acquire fetches url into dest unless dest already exists. Avatar-shaped
// URLs requested for content yield ErrSkippedProfileImage.
func (a *Acquirer) Acquire(ctx context.Context, url, dest string, purpose Purpose) (string, error) {
	if _, err := os.Stat(dest); err == nil {
		slog.Debug("File already exists, skipping download", "path", dest)
		return dest, nil
	}
	if purpose == PurposeContent && a.dialect.IsAvatarURL(url) {
		slog.Info("Profile image in content media, skipping", "url", url)
		return "", ErrSkippedProfileImage
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	err := a.policy.Do(ctx, func(attempt int) error {
		err := a.download(ctx, url, dest)
		if err != nil {
			slog.Warn("Download attempt failed", "url", url, "attempt", attempt+1, "max", a.policy.MaxAttempts, "error", err)
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	slog.Info("Downloaded", "path", dest)
	return dest, nil
}

// download streams the body into a temp file next to dest and renames it
// into place, so dest never holds a partial file.
func (a *Acquirer) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

package media

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pauljones0/feed-relay/internal/models"
	"github.com/pauljones0/feed-relay/internal/util"
)

// CachedAvatar looks for owner's avatar under any accepted extension.
func (r *Resolver) CachedAvatar(owner string) (string, bool) {
	for _, ext := range r.dialect.Avatar.CacheExts {
		path := filepath.Join(r.avatarDir, owner+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// ResolveAvatar returns owner's cached avatar, fetching the high resolution
// variant of url on a miss. The cache is keyed by owner, so a hit never
// fetches even when url differs from the one cached.
func (r *Resolver) ResolveAvatar(ctx context.Context, owner, url string) *models.AvatarRef {
	if owner == "" {
		return nil
	}
	if path, ok := r.CachedAvatar(owner); ok {
		return &models.AvatarRef{OwnerName: owner, LocalPath: path}
	}
	if !r.dialect.IsAvatarURL(url) {
		slog.Warn("No cached avatar and no avatar URL", "owner", owner)
		return nil
	}

	highRes := r.dialect.HighResAvatarURL(url)
	ext := util.URLExt(highRes)
	if ext == "" {
		ext = r.dialect.Avatar.DefaultExt
	}
	path, err := r.acquirer.Acquire(ctx, highRes, filepath.Join(r.avatarDir, owner+ext), PurposeAvatar)
	if err != nil {
		slog.Warn("Avatar download failed", "owner", owner, "url", highRes, "error", err)
		return nil
	}
	return &models.AvatarRef{OwnerName: owner, LocalPath: path}
}

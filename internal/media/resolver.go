package media

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/feed-relay/internal/dialect"
	"github.com/pauljones0/feed-relay/internal/models"
)

// Resolver collects the media and avatars a post body references and
// acquires them through an Acquirer.
type Resolver struct {
	dialect   dialect.Dialect
	acquirer  *Acquirer
	avatarDir string
}

func NewResolver(d dialect.Dialect, acquirer *Acquirer, avatarDir string) *Resolver {
	return &Resolver{
		dialect:   d,
		acquirer:  acquirer,
		avatarDir: avatarDir,
	}
}

// Scan returns the content media of body: visible images first, then
// visible videos, each URL once in first-seen order. Avatar images are left
// out.
func (r *Resolver) Scan(body string) []models.MediaRef {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		slog.Warn("Failed to parse description for media", "error", err)
		return nil
	}

	var refs []models.MediaRef
	seen := make(map[string]bool)
	add := func(src string, kind models.MediaKind) {
		src = strings.TrimSpace(src)
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		refs = append(refs, models.MediaRef{SourceURL: src, Kind: kind})
	}

	// goquery hands back attribute values with entities already decoded.
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if isHiddenImage(s) {
			return
		}
		src, _ := s.Attr("src")
		if r.dialect.IsAvatarURL(src) {
			return
		}
		add(src, models.MediaImage)
	})

	doc.Find("video").Each(func(_ int, s *goquery.Selection) {
		if isHiddenVideo(s) {
			return
		}
		src, ok := s.Attr("src")
		if !ok || src == "" {
			src, _ = s.Find("source").First().Attr("src")
		}
		add(src, models.MediaVideo)
	})

	return refs
}

// Resolve fills post.Media and the avatars of every author on the post.
// A media item that cannot be fetched is kept without a local path; a
// profile image met on the content path is dropped.
func (r *Resolver) Resolve(ctx context.Context, body string, post *models.Post) {
	var kept []models.MediaRef
	for _, ref := range r.Scan(body) {
		path, err := r.acquirer.AcquireMedia(ctx, ref.SourceURL, post.Author.Name)
		switch {
		case errors.Is(err, ErrSkippedProfileImage):
			continue
		case err != nil:
			slog.Warn("Media acquisition failed, continuing without it", "link", post.Link, "url", ref.SourceURL, "error", err)
		default:
			ref.LocalPath = path
		}
		kept = append(kept, ref)
	}
	post.Media = kept

	post.Avatar = r.ResolveAvatar(ctx, post.Author.Name, post.Author.AvatarURL)
	if post.Quoted != nil {
		post.Quoted.Avatar = r.ResolveAvatar(ctx, post.Quoted.Author.Name, post.Quoted.Author.AvatarURL)
	}
	if post.Reshared != nil {
		post.ResharedAvatar = r.ResolveAvatar(ctx, post.Reshared.Name, post.Reshared.AvatarURL)
	}
}

func isHiddenImage(s *goquery.Selection) bool {
	if isHiddenAttr(s) {
		return true
	}
	w, _ := s.Attr("width")
	h, _ := s.Attr("height")
	return w == "0" && h == "0"
}

func isHiddenVideo(s *goquery.Selection) bool {
	if isHiddenAttr(s) {
		return true
	}
	style, _ := s.Attr("style")
	return strings.Contains(strings.ReplaceAll(strings.ToLower(style), " ", ""), "display:none")
}

func isHiddenAttr(s *goquery.Selection) bool {
	v, ok := s.Attr("hidden")
	return ok && !strings.EqualFold(v, "false")
}

// Package normalizer turns one RSSHub Twitter feed entry into a models.Post.
//
// The description field of such entries is HTML without a fixed schema. The
// entry is first classified as a plain post, a bare retweet or a quote tweet
// by a fixed list of matchers, then each region is cleaned independently.
// Normalization never fails: a body whose shape is not recognized degrades to
// its cleaned form.
package normalizer

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/pauljones0/feed-relay/internal/dialect"
	"github.com/pauljones0/feed-relay/internal/models"
	"github.com/pauljones0/feed-relay/internal/util"
)

type Normalizer struct {
	dialect     dialect.Dialect
	policy      *bluemonday.Policy
	retweetRe   *regexp.Regexp
	quoteOpenRe *regexp.Regexp
}

func New(d dialect.Dialect) *Normalizer {
	return &Normalizer{
		dialect:     d,
		policy:      newBreakOnlyPolicy(),
		retweetRe:   regexp.MustCompile(`(?i)^(.+?)\s+` + regexp.QuoteMeta(d.RetweetMarker) + `\s*<br\s*/?>`),
		quoteOpenRe: regexp.MustCompile(`(?i)<div\b[^>]*\bclass="(?:[^"]*\s)?` + regexp.QuoteMeta(d.QuoteBlockClass) + `(?:\s[^"]*)?"[^>]*>`),
	}
}

// Normalize parses entry into a Post. It has no side effects; media, avatars
// and the publish time are resolved later by their own components.
func (n *Normalizer) Normalize(entry models.FeedEntry) models.Post {
	display := StripTags(html.UnescapeString(entry.Author))
	if display == "" {
		display = unknownName
	}
	post := models.Post{
		Link:     strings.TrimSpace(entry.Link),
		AuthorID: util.AuthorIDFromLink(entry.Link),
		Author: models.Author{
			Name:        SanitizeName(display),
			DisplayName: display,
		},
		Categories: Hashtags(entry.Categories),
	}

	c := n.classify(entry.Description)
	post.Kind = c.kind
	post.IsDirectRetweet = c.kind == models.KindBareRetweet
	post.Author.AvatarURL = n.firstAvatarURL(c.main)

	switch c.kind {
	case models.KindBareRetweet:
		reshared, rest, ok := splitLeadingAuthor(c.block)
		if ok {
			post.Reshared = &reshared
		}
		post.MainText = n.text(rest)
	case models.KindQuoteTweet:
		post.MainText = n.text(stripAuthorPrefix(c.main, post.Author.Name, display))
		quotedAuthor, rest, _ := splitLeadingAuthor(c.block)
		post.Quoted = &models.QuotedPost{
			Author: quotedAuthor,
			Text:   n.text(rest),
		}
	default:
		post.MainText = n.text(stripAuthorPrefix(c.main, post.Author.Name, display))
	}
	return post
}

func (n *Normalizer) text(raw string) models.Text {
	cleaned := n.Clean(raw)
	return models.Text{HTML: cleaned, Plain: PlainText(cleaned)}
}

// Hashtags turns category labels into #-prefixed tags, keeping feed order
// and dropping empty or repeated labels.
func Hashtags(categories []string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		tags = append(tags, "#"+c)
	}
	return tags
}

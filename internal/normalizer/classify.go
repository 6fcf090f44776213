package normalizer

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/pauljones0/feed-relay/internal/models"
)

var (
	divTagRe = regexp.MustCompile(`(?i)<(/?)div\b[^>]*>`)
	imgSrcRe = regexp.MustCompile(`(?i)<img[^>]+?src="([^"]+?)"[^>]*?>`)

	// <img src="avatar">Name: at the start of a reshared or quoted block.
	leadingAuthorRe = regexp.MustCompile(`(?i)^(?:\s|<br\s*/?>)*<img[^>]+?src="([^"]+?)"[^>]*?>\s*([^:：<]+?)\s*[:：]\s*`)
	leadingImgRe    = regexp.MustCompile(`(?i)^(?:\s|<br\s*/?>)*<img[^>]*>`)

	// Name: at the start of a body, optionally behind an avatar tag.
	genericPrefixRe = regexp.MustCompile(`^\s*(?:<img[^>]*>\s*)?([^<>:：]+?)[:：]\s*`)
)

// classification is the outcome of one matcher over a raw description.
type classification struct {
	kind models.PostKind
	// main is the region written by the entry's own author.
	main string
	// block is the reshared payload or the quoted block's inner HTML.
	block string
}

type matcher func(desc string) (classification, bool)

func (n *Normalizer) matchers() []matcher {
	return []matcher{n.matchBareRetweet, n.matchQuoteTweet}
}

// classify runs the matchers in order; anything unmatched is a plain post.
func (n *Normalizer) classify(desc string) classification {
	for _, m := range n.matchers() {
		if c, ok := m(desc); ok {
			return c
		}
	}
	return classification{kind: models.KindPlain, main: desc}
}

func (n *Normalizer) matchBareRetweet(desc string) (classification, bool) {
	loc := n.retweetRe.FindStringSubmatchIndex(desc)
	if loc == nil {
		return classification{}, false
	}
	return classification{
		kind:  models.KindBareRetweet,
		main:  desc[loc[2]:loc[3]],
		block: desc[loc[1]:],
	}, true
}

func (n *Normalizer) matchQuoteTweet(desc string) (classification, bool) {
	loc := n.quoteOpenRe.FindStringIndex(desc)
	if loc == nil {
		return classification{}, false
	}
	return classification{
		kind:  models.KindQuoteTweet,
		main:  desc[:loc[0]],
		block: innerDiv(desc, loc[1]),
	}, true
}

// innerDiv returns the content of a div whose opening tag ends at start, up
// to its balancing close tag (or the end of s when unbalanced).
func innerDiv(s string, start int) string {
	depth := 1
	for _, m := range divTagRe.FindAllStringSubmatchIndex(s[start:], -1) {
		if m[3] > m[2] {
			depth--
		} else {
			depth++
		}
		if depth == 0 {
			return s[start : start+m[0]]
		}
	}
	return s[start:]
}

// splitLeadingAuthor pulls the "<img>Name:" fragment off the front of a
// reshared or quoted block. ok is false when the block has no such fragment,
// in which case only a bare leading image tag is removed.
func splitLeadingAuthor(block string) (author models.Author, rest string, ok bool) {
	m := leadingAuthorRe.FindStringSubmatchIndex(block)
	if m == nil {
		return models.Author{}, leadingImgRe.ReplaceAllString(block, ""), false
	}
	display := strings.TrimSpace(html.UnescapeString(block[m[4]:m[5]]))
	return models.Author{
		Name:        SanitizeName(display),
		DisplayName: display,
		AvatarURL:   html.UnescapeString(block[m[2]:m[3]]),
	}, block[m[1]:], true
}

// stripAuthorPrefix removes the leading "Name:" of a body. Each candidate
// name is tried in order, then the generic pattern. A body matching none of
// them is returned unchanged.
func stripAuthorPrefix(body string, names ...string) string {
	for _, name := range names {
		if name == "" {
			continue
		}
		re := regexp.MustCompile(`(?s)^.*?` + regexp.QuoteMeta(name) + `[:：]\s*`)
		if loc := re.FindStringIndex(body); loc != nil {
			return body[loc[1]:]
		}
	}
	// a scheme like "https:" is not a name
	if loc := genericPrefixRe.FindStringIndex(body); loc != nil && !strings.HasPrefix(body[loc[1]:], "//") {
		return body[loc[1]:]
	}
	return body
}

// firstAvatarURL returns the first avatar-shaped image source in region.
func (n *Normalizer) firstAvatarURL(region string) string {
	for _, m := range imgSrcRe.FindAllStringSubmatch(region, -1) {
		u := html.UnescapeString(m[1])
		if n.dialect.IsAvatarURL(u) {
			return u
		}
	}
	return ""
}

package models

import (
	"time"
)

// PostKind tags how a feed entry's body was classified.
type PostKind int

const (
	KindPlain PostKind = iota
	KindBareRetweet
	KindQuoteTweet
)

func (k PostKind) String() string {
	switch k {
	case KindBareRetweet:
		return "bare_retweet"
	case KindQuoteTweet:
		return "quote_tweet"
	default:
		return "plain"
	}
}

// MediaKind distinguishes images from videos in a post body.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// FeedEntry is one syndication item as handed over by the feed fetcher.
type FeedEntry struct {
	Link        string
	Title       string
	Description string
	Author      string
	PubDate     string
	Categories  []string
	FeedURL     string
}

// Text holds one text field at each stage of processing. Any stage may be empty.
type Text struct {
	HTML       string // entities decoded, only <br> kept
	Plain      string // <br> turned into newlines
	Translated string
}

// IsEmpty reports whether no stage carries any content.
func (t Text) IsEmpty() bool {
	return t.HTML == "" && t.Plain == "" && t.Translated == ""
}

// Author identifies the writer of a post or quoted post.
type Author struct {
	Name        string // sanitized, filesystem safe
	DisplayName string
	AvatarURL   string `validate:"omitempty,url"`
}

// MediaRef is one content image or video referenced by a post body.
// LocalPath stays empty until the file has been acquired.
type MediaRef struct {
	SourceURL string `validate:"required"`
	LocalPath string
	Kind      MediaKind `validate:"oneof=image video"`
}

// AvatarRef points at the cached avatar of one author.
type AvatarRef struct {
	OwnerName string
	LocalPath string
}

// QuotedPost is the embedded original of a quote tweet.
type QuotedPost struct {
	Author Author
	Text   Text
	Avatar *AvatarRef
}

// Post is the canonical form of one feed entry.
type Post struct {
	Link     string `validate:"required,url"`
	AuthorID string `validate:"required"`
	Author   Author
	MainText Text

	Kind            PostKind
	IsDirectRetweet bool

	// Quoted is set for quote tweets only.
	Quoted *QuotedPost
	// Reshared is the original author of a bare retweet.
	Reshared *Author

	Categories []string

	PublishedAt      time.Time
	PublishedDisplay string

	Media          []MediaRef `validate:"dive"`
	Avatar         *AvatarRef
	ResharedAvatar *AvatarRef
}

// HasText reports whether the post or its quoted part carries any text at all.
func (p *Post) HasText() bool {
	if !p.MainText.IsEmpty() {
		return true
	}
	return p.Quoted != nil && !p.Quoted.Text.IsEmpty()
}

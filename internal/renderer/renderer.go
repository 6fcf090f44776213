// Package renderer draws a normalized post as a PNG card: an HTML page built
// from embedded templates, screenshotted by a headless browser.
package renderer

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pauljones0/feed-relay/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	quoteTemplate   = "quote.html"
	noQuoteTemplate = "no-quote.html"

	retweetLabel = "已转推"
)

var (
	hashtagRe    = regexp.MustCompile(`#[^<\s]+`)
	newlineRunRe = regexp.MustCompile(`\n+`)
)

// Screenshotter turns an HTML document into PNG bytes of its card element.
type Screenshotter interface {
	Screenshot(ctx context.Context, document string) ([]byte, error)
}

type Renderer struct {
	templates      *template.Template
	shooter        Screenshotter
	outputDir      string
	translatorName string
	now            func() time.Time
}

// New builds a renderer. translatorName feeds the translation label and may be
// empty when translation is disabled.
func New(shooter Screenshotter, outputDir, translatorName string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse card templates: %w", err)
	}
	return &Renderer{
		templates:      tmpl,
		shooter:        shooter,
		outputDir:      outputDir,
		translatorName: translatorName,
		now:            time.Now,
	}, nil
}

type cardData struct {
	AuthorName        string
	AuthorID          string
	AvatarURI         template.URL
	ResharedName      string
	ResharedAvatarURI template.URL
	Original          template.HTML
	Translated        template.HTML
	TranslateSource   template.HTML
	QuoteAuthorName   string
	QuoteAvatarURI    template.URL
	QuoteOriginal     template.HTML
	QuoteTranslated   template.HTML
	Published         string
	Categories        []string
}

// Render writes the card for post to <outputDir>/<YYYYMMDD_HHMMSS>.png and
// returns its path.
func (r *Renderer) Render(ctx context.Context, post *models.Post) (string, error) {
	doc, err := r.BuildHTML(post)
	if err != nil {
		return "", err
	}

	png, err := r.shooter.Screenshot(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to screenshot card for %s: %w", post.Link, err)
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := r.outputPath()
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write card %s: %w", path, err)
	}
	slog.Info("Rendered card", "link", post.Link, "path", path, "bytes", len(png))
	return path, nil
}

func (r *Renderer) outputPath() string {
	stamp := r.now().Format("20060102_150405")
	path := filepath.Join(r.outputDir, stamp+".png")
	for i := 1; fileExists(path); i++ {
		path = filepath.Join(r.outputDir, fmt.Sprintf("%s_%d.png", stamp, i))
	}
	return path
}

// BuildHTML fills the quote or no-quote template for post.
func (r *Renderer) BuildHTML(post *models.Post) (string, error) {
	data := cardData{
		AuthorName:      displayName(post.Author),
		AuthorID:        post.AuthorID,
		AvatarURI:       avatarURI(post.Avatar),
		Original:        highlight(strings.Split(post.MainText.HTML, "<br>")),
		Translated:      highlight(translatedLines(post.MainText)),
		TranslateSource: r.translateSource(post),
		Published:       post.PublishedDisplay,
		Categories:      post.Categories,
	}
	if post.Reshared != nil {
		data.ResharedName = displayName(*post.Reshared)
		data.ResharedAvatarURI = avatarURI(post.ResharedAvatar)
	}

	name := noQuoteTemplate
	if q := post.Quoted; q != nil && hasQuotedText(q) {
		name = quoteTemplate
		data.QuoteAuthorName = displayName(q.Author)
		data.QuoteAvatarURI = avatarURI(q.Avatar)
		data.QuoteOriginal = highlight(strings.Split(q.Text.HTML, "<br>"))
		data.QuoteTranslated = highlight(translatedLines(q.Text))
	}

	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to execute %s: %w", name, err)
	}
	return buf.String(), nil
}

func (r *Renderer) translateSource(post *models.Post) template.HTML {
	switch {
	case !post.HasText():
		return ""
	case post.IsDirectRetweet:
		return retweetLabel
	case r.translatorName == "":
		return ""
	default:
		return template.HTML("由 " + html.EscapeString(r.translatorName) + " 翻译自日语")
	}
}

func hasQuotedText(q *models.QuotedPost) bool {
	return strings.TrimSpace(q.Text.HTML) != "" || strings.TrimSpace(q.Text.Translated) != ""
}

// translatedLines splits a translation into display lines. A translation
// identical to the source is not shown twice.
func translatedLines(t models.Text) []string {
	tr := strings.TrimSpace(t.Translated)
	if tr == "" || tr == strings.TrimSpace(t.Plain) {
		return nil
	}
	return strings.Split(newlineRunRe.ReplaceAllString(tr, "\n"), "\n")
}

// highlight escapes each line, wraps hashtags in a colored span and joins
// the lines with <br>.
func highlight(lines []string) template.HTML {
	var b strings.Builder
	wrote := false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if wrote {
			b.WriteString("<br>")
		}
		wrote = true
		line = html.UnescapeString(line)
		last := 0
		for _, loc := range hashtagRe.FindAllStringIndex(line, -1) {
			b.WriteString(html.EscapeString(line[last:loc[0]]))
			b.WriteString(`<span style="color:#1da1f2;">`)
			b.WriteString(html.EscapeString(line[loc[0]:loc[1]]))
			b.WriteString(`</span>`)
			last = loc[1]
		}
		b.WriteString(html.EscapeString(line[last:]))
	}
	return template.HTML(b.String())
}

func displayName(a models.Author) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Name
}

// avatarURI inlines a cached avatar as a data URI. A missing or unreadable
// file renders without an avatar.
func avatarURI(ref *models.AvatarRef) template.URL {
	if ref == nil || ref.LocalPath == "" {
		return ""
	}
	data, err := os.ReadFile(ref.LocalPath)
	if err != nil {
		slog.Warn("Failed to inline avatar", "path", ref.LocalPath, "error", err)
		return ""
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(ref.LocalPath), "."))
	switch ext {
	case "", "jpg":
		ext = "jpeg"
	}
	return template.URL("data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(data))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package util

import (
	"net/url"
	"path"
	"strings"
)

const unknownAuthorID = "unknown_user"

// AuthorIDFromLink returns the first path segment of a post link, which on
// twitter-style links is the author's handle.
func AuthorIDFromLink(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return unknownAuthorID
	}
	for _, seg := range strings.Split(parsedURL.Path, "/") {
		if seg != "" {
			return seg
		}
	}
	return unknownAuthorID
}

// MediaBaseName returns the basename of a media URL's path. When the basename
// has no extension and the URL carries formatParam (e.g. ?format=jpg), the
// value of that parameter is appended as the extension.
func MediaBaseName(rawURL, formatParam string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(parsedURL.Path)
	if base == "/" || base == "." {
		return ""
	}
	if path.Ext(base) == "" && formatParam != "" {
		if format := parsedURL.Query().Get(formatParam); format != "" {
			base += "." + format
		}
	}
	return base
}

// URLExt returns the lowercased extension of the URL's path, including the dot.
func URLExt(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(parsedURL.Path))
}

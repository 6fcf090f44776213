package dialect

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Dialect describes the markup conventions of the feed generator whose
// descriptions we parse.
type Dialect struct {
	ProfileImagePrefix string         `json:"profile_image_prefix"`
	QuoteBlockClass    string         `json:"quote_block_class"`
	RetweetMarker      string         `json:"retweet_marker"`
	Avatar             AvatarSettings `json:"avatar"`
	MediaFormatParam   string         `json:"media_format_param"`
}

type AvatarSettings struct {
	SizeToken    string   `json:"size_token"`     // e.g., "_normal."
	HighResToken string   `json:"high_res_token"` // e.g., "_400x400."
	DefaultExt   string   `json:"default_ext"`
	CacheExts    []string `json:"cache_exts"`
}

// IsAvatarURL reports whether u points at a profile image rather than content media.
func (d Dialect) IsAvatarURL(u string) bool {
	return d.ProfileImagePrefix != "" && strings.HasPrefix(u, d.ProfileImagePrefix)
}

// HighResAvatarURL rewrites the resolution token of an avatar URL.
func (d Dialect) HighResAvatarURL(u string) string {
	if d.Avatar.SizeToken == "" {
		return u
	}
	return strings.Replace(u, d.Avatar.SizeToken, d.Avatar.HighResToken, 1)
}

// Load loads the dialect from the specified JSON file.
func Load(path string) (Dialect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Dialect{}, fmt.Errorf("failed to read dialect config file: %w", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses a dialect from raw JSON bytes. Fields missing from the
// JSON keep their default values.
func LoadFromBytes(data []byte) (Dialect, error) {
	d := Default()
	if err := json.Unmarshal(data, &d); err != nil {
		return Dialect{}, fmt.Errorf("failed to parse dialect config JSON: %w", err)
	}
	if d.ProfileImagePrefix == "" || d.QuoteBlockClass == "" || d.RetweetMarker == "" {
		return Dialect{}, fmt.Errorf("dialect config is missing required markers")
	}

	return d, nil
}

// Default returns the RSSHub Twitter dialect used when no JSON is loaded.
func Default() Dialect {
	return Dialect{
		ProfileImagePrefix: "https://pbs.twimg.com/profile_images/",
		QuoteBlockClass:    "rsshub-quote",
		RetweetMarker:      "RT",
		Avatar: AvatarSettings{
			SizeToken:    "_normal.",
			HighResToken: "_400x400.",
			DefaultExt:   ".png",
			CacheExts:    []string{".jpg", ".jpeg", ".png", ".gif"},
		},
		MediaFormatParam: "format",
	}
}

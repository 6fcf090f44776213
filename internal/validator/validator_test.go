package validator

import (
	"testing"

	"github.com/pauljones0/feed-relay/internal/models"
)

func TestValidator_ValidateStruct(t *testing.T) {
	v := New()

	valid := func() models.Post {
		return models.Post{
			Link:     "https://twitter.com/seiyuu_a/status/1",
			AuthorID: "seiyuu_a",
			Author:   models.Author{Name: "声優A", AvatarURL: "https://pbs.twimg.com/profile_images/1/a_normal.jpg"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*models.Post)
		wantErr bool
	}{
		{
			name:    "Valid Post",
			mutate:  func(*models.Post) {},
			wantErr: false,
		},
		{
			name:    "Missing Link",
			mutate:  func(p *models.Post) { p.Link = "" },
			wantErr: true,
		},
		{
			name:    "Invalid Link",
			mutate:  func(p *models.Post) { p.Link = "status/1" },
			wantErr: true,
		},
		{
			name:    "Missing Author ID",
			mutate:  func(p *models.Post) { p.AuthorID = "" },
			wantErr: true,
		},
		{
			name:    "Invalid Avatar URL",
			mutate:  func(p *models.Post) { p.Author.AvatarURL = "not a url" },
			wantErr: true,
		},
		{
			name:    "Empty Avatar URL",
			mutate:  func(p *models.Post) { p.Author.AvatarURL = "" },
			wantErr: false,
		},
		{
			name: "Quoted author without name",
			mutate: func(p *models.Post) {
				p.Quoted = &models.QuotedPost{Text: models.Text{HTML: "x"}}
			},
			wantErr: false,
		},
		{
			name: "Invalid Quoted Avatar URL",
			mutate: func(p *models.Post) {
				p.Quoted = &models.QuotedPost{Author: models.Author{Name: "C", AvatarURL: "::"}}
			},
			wantErr: true,
		},
		{
			name: "Unknown Media Kind",
			mutate: func(p *models.Post) {
				p.Media = []models.MediaRef{{SourceURL: "https://pbs.twimg.com/media/A.jpg", Kind: "audio"}}
			},
			wantErr: true,
		},
		{
			name: "Media Without Source",
			mutate: func(p *models.Post) {
				p.Media = []models.MediaRef{{Kind: models.MediaVideo}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := valid()
			tt.mutate(&post)
			if err := v.ValidateStruct(post); (err != nil) != tt.wantErr {
				t.Errorf("ValidateStruct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

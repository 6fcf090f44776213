package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pauljones0/feed-relay/internal/dialect"
	"github.com/pauljones0/feed-relay/internal/models"
	"github.com/pauljones0/feed-relay/internal/util"
)

// fileServer serves a fixed body and records every requested path.
type fileServer struct {
	*httptest.Server
	hits     int32
	mu       sync.Mutex
	paths    []string
	failures int32 // respond 500 this many times first
	failPath string
}

func newFileServer(t *testing.T) *fileServer {
	t.Helper()
	fs := &fileServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&fs.hits, 1)
		fs.mu.Lock()
		fs.paths = append(fs.paths, r.URL.Path)
		fs.mu.Unlock()
		if r.Header.Get("User-Agent") != "Mozilla/5.0" {
			t.Errorf("Expected Mozilla/5.0 user agent, got %q", r.Header.Get("User-Agent"))
		}
		if n <= atomic.LoadInt32(&fs.failures) || r.URL.Path == fs.failPath {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("payload"))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func testDialect(serverURL string) dialect.Dialect {
	d := dialect.Default()
	d.ProfileImagePrefix = serverURL + "/profile_images/"
	return d
}

func newTestResolver(t *testing.T, serverURL string) (*Resolver, string, string) {
	t.Helper()
	root := t.TempDir()
	downloadDir := filepath.Join(root, "downloads")
	avatarDir := filepath.Join(root, "avatar")
	d := testDialect(serverURL)
	acq := NewAcquirer(d, downloadDir, util.NoDelay(3))
	acq.now = func() time.Time { return time.Date(2024, 10, 16, 12, 0, 0, 0, time.UTC) }
	return NewResolver(d, acq, avatarDir), downloadDir, avatarDir
}

func TestScan_DedupOrderAndHidden(t *testing.T) {
	r, _, _ := newTestResolver(t, "https://pbs.twimg.com")
	body := `<img src="https://pbs.twimg.com/profile_images/1/a_normal.jpg">声優A: text<br>` +
		`<img width="0" height="0" hidden="true" src="https://pbs.twimg.com/media/hidden.jpg">` +
		`<img src="https://pbs.twimg.com/media/A?format=jpg&amp;name=orig">` +
		`<img src="https://pbs.twimg.com/media/B.png">` +
		`<img src="https://pbs.twimg.com/media/A?format=jpg&name=orig">` +
		`<video src="https://video.twimg.com/v/1.mp4?tag=1" hidden="true"></video>` +
		`<video style="display: none" src="https://video.twimg.com/v/2.mp4"></video>` +
		`<video controls><source src="https://video.twimg.com/v/3.mp4?tag=12&amp;x=1"></video>` +
		`<video src="https://pbs.twimg.com/media/B.png"></video>`

	refs := r.Scan(body)

	want := []models.MediaRef{
		{SourceURL: "https://pbs.twimg.com/media/A?format=jpg&name=orig", Kind: models.MediaImage},
		{SourceURL: "https://pbs.twimg.com/media/B.png", Kind: models.MediaImage},
		{SourceURL: "https://video.twimg.com/v/3.mp4?tag=12&x=1", Kind: models.MediaVideo},
	}
	if len(refs) != len(want) {
		t.Fatalf("Expected %d refs, got %d: %+v", len(want), len(refs), refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("ref %d: got %+v, want %+v", i, refs[i], want[i])
		}
	}
}

func TestAcquireMedia_SkipsProfileImage(t *testing.T) {
	srv := newFileServer(t)
	r, _, _ := newTestResolver(t, srv.URL)

	_, err := r.acquirer.AcquireMedia(context.Background(), srv.URL+"/profile_images/1/a_normal.jpg", "owner")
	if !errors.Is(err, ErrSkippedProfileImage) {
		t.Fatalf("Expected ErrSkippedProfileImage, got %v", err)
	}
	if atomic.LoadInt32(&srv.hits) != 0 {
		t.Errorf("Profile image must not be fetched, got %d hits", srv.hits)
	}
}

func TestAcquireMedia_NamingAndCacheHit(t *testing.T) {
	srv := newFileServer(t)
	r, downloadDir, _ := newTestResolver(t, srv.URL)
	ctx := context.Background()
	url := srv.URL + "/media/GZabc?format=jpg&name=orig"

	path, err := r.acquirer.AcquireMedia(ctx, url, "声優A")
	if err != nil {
		t.Fatalf("AcquireMedia() error: %v", err)
	}
	want := filepath.Join(downloadDir, "声優A", "20241016_GZabc.jpg")
	if path != want {
		t.Errorf("Expected path %s, got %s", want, path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "payload" {
		t.Errorf("Unexpected file content %q, err %v", data, err)
	}

	if _, err := r.acquirer.AcquireMedia(ctx, url, "声優A"); err != nil {
		t.Fatalf("second AcquireMedia() error: %v", err)
	}
	if hits := atomic.LoadInt32(&srv.hits); hits != 1 {
		t.Errorf("Expected existing file to short-circuit, got %d hits", hits)
	}
}

func TestAcquire_RetriesThenSucceeds(t *testing.T) {
	srv := newFileServer(t)
	srv.failures = 2
	r, downloadDir, _ := newTestResolver(t, srv.URL)

	dest := filepath.Join(downloadDir, "x", "file.jpg")
	path, err := r.acquirer.Acquire(context.Background(), srv.URL+"/media/file.jpg", dest, PurposeContent)
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if path != dest {
		t.Errorf("Expected %s, got %s", dest, path)
	}
	if hits := atomic.LoadInt32(&srv.hits); hits != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits)
	}
}

func TestAcquire_ExhaustedLeavesNoFile(t *testing.T) {
	srv := newFileServer(t)
	srv.failures = 100
	r, downloadDir, _ := newTestResolver(t, srv.URL)

	dest := filepath.Join(downloadDir, "x", "file.jpg")
	_, err := r.acquirer.Acquire(context.Background(), srv.URL+"/media/file.jpg", dest, PurposeContent)
	if err == nil {
		t.Fatal("Expected failure after exhausting attempts")
	}
	if hits := atomic.LoadInt32(&srv.hits); hits != 3 {
		t.Errorf("Expected 3 attempts, got %d", hits)
	}
	entries, _ := os.ReadDir(filepath.Dir(dest))
	if len(entries) != 0 {
		t.Errorf("Expected no files after failure, found %d", len(entries))
	}
}

func TestResolve_MediaAndAvatars(t *testing.T) {
	srv := newFileServer(t)
	srv.failPath = "/media/broken.jpg"
	r, _, avatarDir := newTestResolver(t, srv.URL)

	post := models.Post{
		Link:   "https://twitter.com/a/status/1",
		Author: models.Author{Name: "A", AvatarURL: srv.URL + "/profile_images/1/a_normal.jpg"},
		Quoted: &models.QuotedPost{Author: models.Author{Name: "C", AvatarURL: srv.URL + "/profile_images/3/c_400x400"}},
	}
	body := `<img src="` + srv.URL + `/profile_images/1/a_normal.jpg">A: hi` +
		`<img src="` + srv.URL + `/media/ok.jpg">` +
		`<img src="` + srv.URL + `/media/broken.jpg">` +
		`<video src="` + srv.URL + `/profile_images/9/v.mp4"></video>`

	r.Resolve(context.Background(), body, &post)

	if len(post.Media) != 2 {
		t.Fatalf("Expected ok and broken media (avatar-shaped video dropped), got %+v", post.Media)
	}
	if post.Media[0].LocalPath == "" {
		t.Error("Expected ok.jpg to be acquired")
	}
	if post.Media[1].LocalPath != "" {
		t.Errorf("Expected broken.jpg to stay without a local path, got %s", post.Media[1].LocalPath)
	}
	for _, m := range post.Media {
		if strings.Contains(m.SourceURL, "/profile_images/") {
			t.Errorf("Avatar URL leaked into media list: %s", m.SourceURL)
		}
	}

	if post.Avatar == nil || post.Avatar.LocalPath != filepath.Join(avatarDir, "A.jpg") {
		t.Errorf("Unexpected main avatar: %+v", post.Avatar)
	}
	if post.Quoted.Avatar == nil || post.Quoted.Avatar.LocalPath != filepath.Join(avatarDir, "C.png") {
		t.Errorf("Expected quoted avatar with default extension, got %+v", post.Quoted.Avatar)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	var sawHighRes bool
	for _, p := range srv.paths {
		if strings.Contains(p, "_normal") {
			t.Errorf("Avatar fetched at low resolution: %s", p)
		}
		if p == "/profile_images/1/a_400x400.jpg" {
			sawHighRes = true
		}
	}
	if !sawHighRes {
		t.Errorf("Expected high resolution avatar request, got %v", srv.paths)
	}
}

func TestResolveAvatar_CacheHitNeverFetches(t *testing.T) {
	srv := newFileServer(t)
	r, _, avatarDir := newTestResolver(t, srv.URL)

	if err := os.MkdirAll(avatarDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cached := filepath.Join(avatarDir, "A.gif")
	if err := os.WriteFile(cached, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	ref := r.ResolveAvatar(context.Background(), "A", srv.URL+"/profile_images/new/a_normal.jpg")
	if ref == nil || ref.LocalPath != cached {
		t.Fatalf("Expected cached avatar %s, got %+v", cached, ref)
	}
	if hits := atomic.LoadInt32(&srv.hits); hits != 0 {
		t.Errorf("Cache hit must not fetch, got %d hits", hits)
	}
}

func TestResolveAvatar_NoURLNoCache(t *testing.T) {
	r, _, _ := newTestResolver(t, "https://pbs.twimg.com")
	if ref := r.ResolveAvatar(context.Background(), "A", ""); ref != nil {
		t.Errorf("Expected nil avatar, got %+v", ref)
	}
	if ref := r.ResolveAvatar(context.Background(), "", "https://pbs.twimg.com/profile_images/1/a.jpg"); ref != nil {
		t.Errorf("Expected nil avatar for empty owner, got %+v", ref)
	}
}

package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbot "github.com/go-telegram/bot"

	"github.com/pauljones0/feed-relay/internal/models"
)

const okMessage = `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`

func newTelegramServer(t *testing.T) (*httptest.Server, *[]string, *sync.Mutex) {
	t.Helper()
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		if !strings.HasPrefix(r.URL.Path, "/bottest-token/") {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil && method != "getMe" {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		mu.Lock()
		calls = append(calls, method+":"+r.FormValue("chat_id")+":"+r.FormValue("caption"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch method {
		case "getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`))
		case "sendPhoto", "sendVideo":
			w.Write([]byte(okMessage))
		default:
			w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &mu
}

func TestTelegram_SendCardAndMedia(t *testing.T) {
	srv, calls, mu := newTelegramServer(t)
	tg, err := NewTelegram("test-token", tgbot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("NewTelegram() error: %v", err)
	}
	ctx := context.Background()

	if err := tg.Open(ctx); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if err := tg.SendCard(ctx, "-100", writeTempFile(t, "card.png"), "https://twitter.com/a/status/1"); err != nil {
		t.Fatalf("SendCard() error: %v", err)
	}
	if err := tg.SendMedia(ctx, "@relay_channel", models.MediaRef{LocalPath: writeTempFile(t, "v.mp4")}); err != nil {
		t.Fatalf("SendMedia() error: %v", err)
	}
	err = tg.SendMedia(ctx, "-100", models.MediaRef{LocalPath: writeTempFile(t, "x.txt")})
	if !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("Expected ErrUnsupportedMedia, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		"getMe::",
		"sendPhoto:-100:🔗 原文链接：https://twitter.com/a/status/1",
		"sendVideo:@relay_channel:",
	}
	if len(*calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, *calls)
	}
	for i := range want {
		if (*calls)[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, (*calls)[i], want[i])
		}
	}
}

func TestChatID(t *testing.T) {
	if id, ok := chatID("-100123").(int64); !ok || id != -100123 {
		t.Errorf("Expected numeric chat id, got %v", chatID("-100123"))
	}
	if name, ok := chatID("@chan").(string); !ok || name != "@chan" {
		t.Errorf("Expected username, got %v", chatID("@chan"))
	}
}

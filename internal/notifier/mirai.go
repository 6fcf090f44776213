package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/feed-relay/internal/models"
)

const (
	miraiTimeout    = 60 * time.Second
	miraiMaxRetries = 3
	linkPrefix      = "🔗 原文链接："
)

// ErrNoSession is returned by send operations before Open succeeded.
var ErrNoSession = errors.New("mirai session not open")

// Mirai delivers to QQ groups through the mirai-api-http HTTP adapter.
type Mirai struct {
	baseURL     string
	verifyKey   string
	qq          int64
	client      *http.Client
	rateLimiter *rate.Limiter

	mu         sync.Mutex
	sessionKey string
}

func NewMirai(baseURL, verifyKey string, qq int64) *Mirai {
	return &Mirai{
		baseURL:   strings.TrimRight(baseURL, "/"),
		verifyKey: verifyKey,
		qq:        qq,
		client:    &http.Client{Timeout: miraiTimeout},
		// 2 requests/s.
		rateLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
	}
}

type miraiResponse struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Session   string `json:"session"`
	ImageID   string `json:"imageId"`
	MessageID int64  `json:"messageId"`
	Data      struct {
		ID string `json:"id"`
	} `json:"data"`
}

type messagePart struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	ImageID string `json:"imageId,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Open verifies the key and binds the session to the bot account. It is
// called once per pass; a new session replaces the old one.
func (m *Mirai) Open(ctx context.Context) error {
	var verify miraiResponse
	if err := m.postJSON(ctx, "/verify", map[string]any{"verifyKey": m.verifyKey}, &verify); err != nil {
		return fmt.Errorf("mirai verify: %w", err)
	}
	if verify.Session == "" {
		return fmt.Errorf("mirai verify returned no session")
	}

	var bind miraiResponse
	if err := m.postJSON(ctx, "/bind", map[string]any{"sessionKey": verify.Session, "qq": m.qq}, &bind); err != nil {
		return fmt.Errorf("mirai bind: %w", err)
	}

	m.mu.Lock()
	m.sessionKey = verify.Session
	m.mu.Unlock()
	slog.Info("Mirai session opened", "qq", m.qq)
	return nil
}

func (m *Mirai) session() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionKey == "" {
		return "", ErrNoSession
	}
	return m.sessionKey, nil
}

// SendCard uploads the rendered card, sends it to the group, then sends the
// source link as a separate text message.
func (m *Mirai) SendCard(ctx context.Context, channel, imagePath, link string) error {
	target, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", channel, err)
	}
	imageID, err := m.uploadImage(ctx, imagePath)
	if err != nil {
		return err
	}
	if err := m.sendGroupMessage(ctx, target, messagePart{Type: "Image", ImageID: imageID}); err != nil {
		return err
	}
	return m.sendGroupMessage(ctx, target, messagePart{Type: "Plain", Text: linkPrefix + link})
}

// SendMedia sends one acquired file: images as image messages, videos as
// group files.
func (m *Mirai) SendMedia(ctx context.Context, channel string, ref models.MediaRef) error {
	target, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid group id %q: %w", channel, err)
	}
	switch ClassifyFile(ref.LocalPath) {
	case models.MediaImage:
		imageID, err := m.uploadImage(ctx, ref.LocalPath)
		if err != nil {
			return err
		}
		return m.sendGroupMessage(ctx, target, messagePart{Type: "Image", ImageID: imageID})
	case models.MediaVideo:
		fileID, err := m.uploadFile(ctx, target, ref.LocalPath)
		if err != nil {
			return err
		}
		return m.sendGroupMessage(ctx, target, messagePart{Type: "File", ID: fileID})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMedia, ref.LocalPath)
	}
}

func (m *Mirai) uploadImage(ctx context.Context, path string) (string, error) {
	session, err := m.session()
	if err != nil {
		return "", err
	}
	var resp miraiResponse
	err = m.postMultipart(ctx, "/uploadImage", map[string]string{
		"sessionKey": session,
		"type":       "group",
	}, "img", path, &resp)
	if err != nil {
		return "", fmt.Errorf("mirai upload image %s: %w", filepath.Base(path), err)
	}
	if resp.ImageID == "" {
		return "", fmt.Errorf("mirai upload image %s: no imageId in response", filepath.Base(path))
	}
	return resp.ImageID, nil
}

func (m *Mirai) uploadFile(ctx context.Context, target int64, path string) (string, error) {
	session, err := m.session()
	if err != nil {
		return "", err
	}
	var resp miraiResponse
	err = m.postMultipart(ctx, "/file/upload", map[string]string{
		"sessionKey": session,
		"type":       "group",
		"target":     strconv.FormatInt(target, 10),
		"path":       "",
	}, "file", path, &resp)
	if err != nil {
		return "", fmt.Errorf("mirai upload file %s: %w", filepath.Base(path), err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("mirai upload file %s: no file id in response", filepath.Base(path))
	}
	return resp.Data.ID, nil
}

func (m *Mirai) sendGroupMessage(ctx context.Context, target int64, parts ...messagePart) error {
	session, err := m.session()
	if err != nil {
		return err
	}
	var resp miraiResponse
	err = m.postJSON(ctx, "/sendGroupMessage", map[string]any{
		"sessionKey":   session,
		"target":       target,
		"messageChain": parts,
	}, &resp)
	if err != nil {
		return fmt.Errorf("mirai send to %d: %w", target, err)
	}
	slog.Debug("Mirai message sent", "target", target, "message_id", resp.MessageID)
	return nil
}

func (m *Mirai) postJSON(ctx context.Context, path string, payload any, out *miraiResponse) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return m.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (m *Mirai) postMultipart(ctx context.Context, path string, fields map[string]string, fileField, filePath string, out *miraiResponse) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return m.do(ctx, func() (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, err
			}
		}
		part, err := w.CreateFormFile(fileField, filepath.Base(filePath))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, &buf)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", w.FormDataContentType())
		return req, nil
	}, out)
}

// do sends the request built by newReq, retrying on 429 and 5xx. A non-zero
// Mirai status code in the body is an error and is not retried.
func (m *Mirai) do(ctx context.Context, newReq func() (*http.Request, error), out *miraiResponse) error {
	var lastErr error
	for attempt := 0; attempt < miraiMaxRetries; attempt++ {
		if err := m.rateLimiter.Wait(ctx); err != nil {
			return err
		}
		req, err := newReq()
		if err != nil {
			return err
		}

		resp, err := m.client.Do(req)
		if err != nil {
			lastErr = err
			slog.Warn("Mirai request failed", "path", req.URL.Path, "attempt", attempt+1, "error", err)
			if !sleepCtx(ctx, time.Duration(math.Pow(2, float64(attempt)))*time.Second) {
				return ctx.Err()
			}
			continue
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(bodyBytes, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			if out.Code != 0 {
				return fmt.Errorf("mirai code %d: %s", out.Code, out.Msg)
			}
			return nil
		}

		lastErr = fmt.Errorf("mirai status: %s, body: %s", resp.Status, string(bodyBytes))
		wait := retryBackoff(resp, attempt)
		if wait == 0 {
			return lastErr
		}
		slog.Warn("Mirai request will be retried", "path", req.URL.Path, "status", resp.StatusCode, "wait", wait)
		if !sleepCtx(ctx, wait) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", miraiMaxRetries, lastErr)
}

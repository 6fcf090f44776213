// Package translator turns Japanese post text into Simplified Chinese.
// Translation is best effort: any failure yields the source text.
package translator

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/pauljones0/feed-relay/internal/util"
)

const systemPrompt = "你是一名专业翻译，请将日语内容精准翻译为简体中文。要求：\n" +
	"1. 保持原有换行和格式\n" +
	"2. 保留#话题标签和@提及,不进行翻译，同时#话题标签后必须保留空格\n" +
	"3. 禁止添加解释内容\n" +
	"4. 保留URL链接不变\n" +
	"5. 处理日式颜文字不翻译\n" +
	"6. 人名保留原文不翻译"

const userPromptPrefix = "请翻译以下内容：\n"

// DefaultRetryPolicy is three attempts with 1s, 2s backoff.
var DefaultRetryPolicy = util.RetryPolicy{MaxAttempts: 3, Backoff: util.ExponentialBackoff(time.Second)}

var (
	answerPrefixRe = regexp.MustCompile(`^翻译[：:]?\s*`)
	newlineRunRe   = regexp.MustCompile(`\n{3,}`)
)

// Backend performs one translation request.
type Backend interface {
	Complete(ctx context.Context, text string) (string, error)
	// Name is shown in the rendered card, e.g. "DeepSeek".
	Name() string
}

// Translator wraps a Backend with retries and output cleanup. A nil
// *Translator is valid and returns its input unchanged.
type Translator struct {
	backend Backend
	policy  util.RetryPolicy
}

func New(backend Backend, policy util.RetryPolicy) *Translator {
	if backend == nil {
		return nil
	}
	return &Translator{backend: backend, policy: policy}
}

// Name reports the backend name, or "" when translation is disabled.
func (t *Translator) Name() string {
	if t == nil {
		return ""
	}
	return t.backend.Name()
}

// Translate never fails. Blank input, a disabled translator, an empty
// answer or exhausted retries all return text as given.
func (t *Translator) Translate(ctx context.Context, text string) string {
	if t == nil || strings.TrimSpace(text) == "" {
		return text
	}

	start := time.Now()
	var out string
	err := t.policy.Do(ctx, func(attempt int) error {
		resp, err := t.backend.Complete(ctx, text)
		if err != nil {
			slog.Warn("Translation attempt failed", "backend", t.backend.Name(), "attempt", attempt+1, "error", err)
			return err
		}
		out = postProcess(resp)
		if out == "" {
			slog.Warn("Translation returned empty answer", "backend", t.backend.Name(), "attempt", attempt+1)
			return errEmptyAnswer
		}
		return nil
	})
	if err != nil {
		slog.Error("Translation failed, keeping source text", "backend", t.backend.Name(), "error", err, "source", truncate(text, 100))
		return text
	}
	slog.Info("Translation succeeded", "backend", t.backend.Name(), "duration", time.Since(start))
	return out
}

func postProcess(s string) string {
	s = strings.TrimSpace(s)
	s = answerPrefixRe.ReplaceAllString(s, "")
	return newlineRunRe.ReplaceAllString(s, "\n\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

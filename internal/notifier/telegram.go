package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/pauljones0/feed-relay/internal/models"
)

// Telegram delivers to chats through the Bot API. Channels are numeric chat
// IDs or @usernames.
type Telegram struct {
	bot *tgbot.Bot
}

func NewTelegram(token string, opts ...tgbot.Option) (*Telegram, error) {
	opts = append([]tgbot.Option{tgbot.WithSkipGetMe()}, opts...)
	b, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Telegram{bot: b}, nil
}

// Open checks the token. The Bot API has no session to establish.
func (t *Telegram) Open(ctx context.Context) error {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	slog.Info("Telegram bot ready", "username", me.Username)
	return nil
}

// SendCard posts the card as a photo captioned with the source link.
func (t *Telegram) SendCard(ctx context.Context, channel, imagePath, link string) error {
	f, err := os.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = t.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID:  chatID(channel),
		Photo:   &tgmodels.InputFileUpload{Filename: filepath.Base(imagePath), Data: f},
		Caption: linkPrefix + link,
	})
	if err != nil {
		return fmt.Errorf("telegram send card to %s: %w", channel, err)
	}
	return nil
}

func (t *Telegram) SendMedia(ctx context.Context, channel string, ref models.MediaRef) error {
	f, err := os.Open(ref.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	upload := &tgmodels.InputFileUpload{Filename: filepath.Base(ref.LocalPath), Data: f}
	switch ClassifyFile(ref.LocalPath) {
	case models.MediaImage:
		_, err = t.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{ChatID: chatID(channel), Photo: upload})
	case models.MediaVideo:
		_, err = t.bot.SendVideo(ctx, &tgbot.SendVideoParams{ChatID: chatID(channel), Video: upload})
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMedia, ref.LocalPath)
	}
	if err != nil {
		return fmt.Errorf("telegram send %s to %s: %w", filepath.Base(ref.LocalPath), channel, err)
	}
	return nil
}

func chatID(channel string) any {
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id
	}
	return channel
}

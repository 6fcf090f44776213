package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	cardSelector      = "#card"
	screenshotTimeout = 60 * time.Second
)

// Chrome keeps one headless browser alive and opens a fresh tab per card.
type Chrome struct {
	browserCtx context.Context
	cancel     func()
}

func NewChrome(ctx context.Context) (*Chrome, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(800, 1200),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing binary fails at startup.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start headless chrome: %w", err)
	}

	return &Chrome{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}, nil
}

// Screenshot loads document into a new tab and captures the card element at
// 2x scale. Capturing the element crops the surrounding whitespace.
func (c *Chrome) Screenshot(ctx context.Context, document string) ([]byte, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, screenshotTimeout)
	defer timeoutCancel()

	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	var buf []byte
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(800, 1200, chromedp.EmulateScale(2)),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, document).Do(ctx)
		}),
		chromedp.WaitVisible(cardSelector, chromedp.ByQuery),
		chromedp.Screenshot(cardSelector, &buf, chromedp.NodeVisible, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Chrome) Close() {
	c.cancel()
}

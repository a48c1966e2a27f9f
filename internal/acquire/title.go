package acquire

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const titleScript = `(() => {
	const og = document.querySelector('meta[property="og:title"]');
	return (og && og.content) || document.title || "";
})()`

// PageTitleResolver loads a page in headless Chrome and reads its title.
type PageTitleResolver struct {
	timeout time.Duration
}

// NewPageTitleResolver creates a resolver; each lookup is bounded by timeout.
func NewPageTitleResolver(timeout time.Duration) *PageTitleResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PageTitleResolver{timeout: timeout}
}

// Resolve returns the page title of url.
func (r *PageTitleResolver) Resolve(ctx context.Context, url string) (string, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var title string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(titleScript, &title, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to load %s: %v", url, err)
	}
	return cleanTitle(title), nil
}

// TitleOrFallback resolves a title, falling back to fallback on any failure.
func (r *PageTitleResolver) TitleOrFallback(ctx context.Context, url, fallback string) string {
	title, err := r.Resolve(ctx, url)
	if err != nil || title == "" {
		if err != nil {
			log.Printf("Title lookup for %s failed: %v", url, err)
		}
		return fallback
	}
	return title
}

// cleanTitle trims whitespace and the " - YouTube" style site suffix.
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, suffix := range []string{" - YouTube", " | Vimeo"} {
		title = strings.TrimSuffix(title, suffix)
	}
	return strings.TrimSpace(title)
}

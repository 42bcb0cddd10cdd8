package chat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Fetcher pulls page text from source URLs to ground a chat turn.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher with a bounded per-request timeout.
func NewFetcher(logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

// maxPageBytes caps how much of a single page is read before extraction.
const maxPageBytes = 1 << 20

// FetchContext downloads each URL, extracts its visible text, and joins the
// results under per-source headers, truncated to limitChars. Fetch failures
// are recorded inline under the source header rather than aborting the whole
// block.
func (f *Fetcher) FetchContext(ctx context.Context, urls []string, limitChars int) string {
	if len(urls) == 0 {
		return ""
	}

	var parts []string
	for _, u := range urls {
		text, err := f.fetchOne(ctx, u)
		if err != nil {
			f.logger.Warn("Failed to fetch source", zap.String("url", u), zap.Error(err))
			parts = append(parts, fmt.Sprintf("# Source: %s\n\n(fetch error: %v)", u, err))
			continue
		}
		parts = append(parts, fmt.Sprintf("# Source: %s\n\n%s", u, text))
	}

	blob := strings.Join(parts, "\n\n")
	if limitChars > 0 && len(blob) > limitChars {
		blob = blob[:limitChars]
	}
	return blob
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", err
	}
	return extractText(body), nil
}

// extractText walks the HTML tree collecting visible text, skipping script
// and style subtrees. Non-HTML input falls out mostly intact because the
// parser treats it as text.
func extractText(data []byte) string {
	root, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return strings.TrimSpace(string(data))
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.TrimSpace(b.String())
}

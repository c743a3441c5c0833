package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"factseeker/internal/core"
	"factseeker/internal/logger"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; factseeker/1.0)"

// contentSelectors are the main-content containers tried in order, covering
// the article markup used by the major Korean outlets plus generic
// semantic tags. The longest extracted text wins.
var contentSelectors = []string{
	"article", ".article", "#article", ".art_body", "#newsEndContents",
	".news_body", ".article_body", "#articleBody", "#articeBody", ".article_view",
	".story-news", ".view_con", ".tts_body",
	"section#article-view", "div#article-view-content-div", ".article-txt", ".at_contents",
	"main", ".entry-content", ".post-content",
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// TextFetcher retrieves source text: article bodies over HTTP and YouTube
// transcripts. Pages that yield no usable text come back as an empty string
// without an error; transport failures are reported as FetchFailed.
type TextFetcher struct {
	client        *http.Client
	userAgent     string
	timedtextBase string
}

// NewTextFetcher creates a TextFetcher with the given per-request timeout.
func NewTextFetcher(timeout time.Duration) *TextFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TextFetcher{
		client:        &http.Client{Timeout: timeout},
		userAgent:     defaultUserAgent,
		timedtextBase: "https://video.google.com/timedtext",
	}
}

// FetchArticleBody downloads a news article and extracts its main text.
// A page that parses but has no recognizable body yields ("", nil).
func (f *TextFetcher) FetchArticleBody(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for %s: %w", articleURL, core.ErrFetchFailed)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %v: %w", articleURL, err, core.ErrFetchFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s returned status %d: %w", articleURL, resp.StatusCode, core.ErrFetchFailed)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %v: %w", articleURL, err, core.ErrFetchFailed)
	}

	text := extractArticleText(doc)
	if text == "" {
		logger.Warn("No article text extracted", "url", articleURL)
	}
	return text, nil
}

// extractArticleText pulls the main text out of a parsed document. The
// non-content elements are removed first; then each candidate container is
// tried and the longest text kept, falling back to the whole body.
func extractArticleText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside, form, iframe, noscript, .sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner").Remove()

	best := ""
	for _, selector := range contentSelectors {
		node := doc.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		if text := collapseWhitespace(node.Text()); len(text) > len(best) {
			best = text
		}
	}

	if best == "" {
		best = collapseWhitespace(doc.Find("body").Text())
	}
	return best
}

// ExtractTitle returns the page title of an HTML document, preferring the
// <title> tag, then the OpenGraph title, then the first <h1>.
func ExtractTitle(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	if title := strings.TrimSpace(doc.Find("head title").First().Text()); title != "" {
		return title
	}
	if ogTitle, _ := doc.Find("meta[property='og:title']").Attr("content"); ogTitle != "" {
		return strings.TrimSpace(ogTitle)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func (f *TextFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(s, " "))
}

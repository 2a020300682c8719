package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sean-China/auto-update/internal/logger"
)

var (
	// ErrNoDownloadLink is returned when the index page carries no usable download anchor.
	ErrNoDownloadLink = errors.New("no download link found")

	// errBadHTTPStatus is returned for non-OK responses from the index page.
	errBadHTTPStatus = errors.New("unexpected http status")
)

// archiveNameSuffix and archiveNamePrefix describe the vendor naming of the
// configs package, used as a fallback when the marker phrase is not present.
const (
	archiveNamePrefix = "fpslocker"
	archiveNameSuffix = ".zip"
)

// Link is a resolved download location with a human-readable label.
type Link struct {
	// URL is the absolute download URL.
	URL string
	// Label identifies the link, usually the anchor text or the archive filename.
	Label string
}

// Resolver discovers the configs download link on the warehouse index page.
type Resolver struct {
	client *http.Client
}

// New creates a resolver using the provided HTTP client,
// falling back to http.DefaultClient when nil is given.
func New(client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}

	return &Resolver{client: client}
}

// Resolve fetches the index page and returns the download link whose
// surrounding text contains the marker phrase. When no anchor matches the
// marker, the first anchor whose href looks like the vendor archive name is
// used instead. Relative hrefs are resolved against the page URL.
func (r *Resolver) Resolve(ctx context.Context, pageURL, marker string) (*Link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse index URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index page: %w", err)
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", pageURL, response.Status, errBadHTTPStatus)
	}

	document, err := goquery.NewDocumentFromReader(response.Body)
	if err != nil {
		return nil, fmt.Errorf("parse index page: %w", err)
	}

	link := findByMarker(document, base, marker)
	if link == nil {
		logger.Debug(ctx, "Marker phrase not found, falling back to archive name matching")

		link = findByArchiveName(document, base)
	}

	if link == nil {
		return nil, ErrNoDownloadLink
	}

	logger.InfoKV(ctx, "Resolved download link", "url", link.URL, "label", link.Label)

	return link, nil
}

// findByMarker returns the first anchor whose parent text contains the marker phrase.
func findByMarker(document *goquery.Document, base *url.URL, marker string) *Link {
	if marker == "" {
		return nil
	}

	var found *Link

	document.Find("a").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		href, ok := anchor.Attr("href")
		if !ok || href == "" {
			return true
		}

		if !strings.Contains(anchor.Parent().Text(), marker) {
			return true
		}

		found = newLink(base, href, anchor.Text())

		return false
	})

	return found
}

// findByArchiveName returns the first anchor whose href basename matches the
// vendor archive naming pattern, e.g. FPSLocker_v1.2.zip.
func findByArchiveName(document *goquery.Document, base *url.URL) *Link {
	var found *Link

	document.Find("a").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		href, ok := anchor.Attr("href")
		if !ok || !matchesArchiveName(href) {
			return true
		}

		found = newLink(base, href, anchor.Text())

		return false
	})

	return found
}

// matchesArchiveName reports whether the href basename looks like the configs package.
func matchesArchiveName(href string) bool {
	name := strings.ToLower(path.Base(href))

	return strings.HasPrefix(name, archiveNamePrefix) && strings.HasSuffix(name, archiveNameSuffix)
}

// newLink builds an absolute Link from an href and an anchor text.
func newLink(base *url.URL, href, text string) *Link {
	absolute := href

	if parsed, err := url.Parse(href); err == nil {
		absolute = base.ResolveReference(parsed).String()
	}

	label := strings.TrimSpace(text)
	if label == "" {
		label = path.Base(absolute)
	}

	return &Link{
		URL:   absolute,
		Label: label,
	}
}

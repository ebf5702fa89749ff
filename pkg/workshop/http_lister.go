package workshop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/adelansari/steam-workshop-collection/pkg/engine"
	"github.com/adelansari/steam-workshop-collection/pkg/session"
	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

// maxPageBytes bounds how much of a listing page is read.
const maxPageBytes = 8 << 20

// ErrRateLimited is returned when Steam answers 429.
var ErrRateLimited = errors.New("rate limited by steam")

// HTTPLister reads server-rendered listing pages without a browser. The
// session argument of ListPage is ignored.
type HTTPLister struct {
	urls      URLs
	client    *http.Client
	userAgent string
}

var _ engine.Lister = (*HTTPLister)(nil)

// NewHTTPLister creates a lister using client, or a client with timeout
// when client is nil.
func NewHTTPLister(urls URLs, client *http.Client, timeout time.Duration) *HTTPLister {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPLister{
		urls:      urls,
		client:    client,
		userAgent: "collection-sync/1.0",
	}
}

func (l *HTTPLister) ListPage(ctx context.Context, _ session.Session, tag types.Tag, page int) ([]types.ItemID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.urls.ListingPage(tag, page), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %s page %d", engine.ErrPageTimeout, tag, page)
		}
		return nil, fmt.Errorf("failed to fetch %s page %d: %w", tag, page, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status fetching %s page %d: %s", tag, page, resp.Status)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	listing := scanListing(doc)
	if listing.noItems {
		return nil, engine.ErrListingEnd
	}
	if len(listing.ids) == 0 {
		return nil, fmt.Errorf("%w: %s page %d has no items", engine.ErrPageTimeout, tag, page)
	}
	return listing.ids, nil
}

type scannedListing struct {
	noItems bool
	ids     []types.ItemID
}

// scanListing walks the document for the end marker and item links.
func scanListing(doc *html.Node) scannedListing {
	var out scannedListing
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attr(n, "id") == "no_items" {
				out.noItems = true
			}
			if n.Data == "a" && hasClass(n, "item_link") {
				if id := types.ItemIDFromURL(attr(n, "href")); id != "" {
					out.ids = append(out.ids, id)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

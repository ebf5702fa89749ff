package workshop

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/adelansari/steam-workshop-collection/pkg/types"
)

const (
	// DefaultListingURL lists one tag of the game's workshop, newest first.
	DefaultListingURL = "https://steamcommunity.com/workshop/browse/?appid=2269950&requiredtags[]={tag}&browsesort=mostrecent&p={page}"

	// DefaultDetailsURL is the shared file page of an item or collection.
	DefaultDetailsURL = "https://steamcommunity.com/sharedfiles/filedetails/?id={id}"
)

// URLs holds the page templates. Placeholders are {tag}, {page} and {id}.
type URLs struct {
	Listing string `yaml:"listing"`
	Details string `yaml:"details"`
}

// DefaultURLs returns the Steam Community templates.
func DefaultURLs() URLs {
	return URLs{
		Listing: DefaultListingURL,
		Details: DefaultDetailsURL,
	}
}

// Validate checks that each template carries its placeholders.
func (u URLs) Validate() error {
	for _, p := range []string{"{tag}", "{page}"} {
		if !strings.Contains(u.Listing, p) {
			return fmt.Errorf("listing url must contain %s", p)
		}
	}
	if !strings.Contains(u.Details, "{id}") {
		return fmt.Errorf("details url must contain {id}")
	}
	return nil
}

// ListingPage returns the listing URL for a tag and 1-based page.
func (u URLs) ListingPage(tag types.Tag, page int) string {
	return strings.NewReplacer(
		"{tag}", url.QueryEscape(string(tag)),
		"{page}", strconv.Itoa(page),
	).Replace(u.Listing)
}

// DetailsPage returns the shared file page for an item or collection id.
func (u URLs) DetailsPage(id string) string {
	return strings.ReplaceAll(u.Details, "{id}", url.QueryEscape(id))
}

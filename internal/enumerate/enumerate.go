// Package enumerate generates the candidate study keys for a harvesting run.
package enumerate

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// DefaultPrefix is the accession prefix of GEO series.
const DefaultPrefix = "GSE"

// Range returns prefix+i for every i in [start, end]. An inverted range
// yields no keys.
func Range(prefix string, start, end int) []geo.StudyKey {
	if end < start {
		return nil
	}
	keys := make([]geo.StudyKey, 0, end-start+1)
	for i := start; i <= end; i++ {
		keys = append(keys, geo.StudyKey(prefix+strconv.Itoa(i)))
	}
	return keys
}

// Explicit normalizes caller-supplied keys, dropping blanks and repeats so a
// run never ingests the same key twice.
func Explicit(raw []string) []geo.StudyKey {
	seen := make(map[string]struct{}, len(raw))
	keys := make([]geo.StudyKey, 0, len(raw))
	for _, r := range raw {
		k := strings.ToUpper(strings.TrimSpace(r))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, geo.StudyKey(k))
	}
	return keys
}

// PlatformListingURL builds the brief text view URL for a platform accession.
func PlatformListingURL(baseURL, platformID string) string {
	q := url.Values{}
	q.Set("acc", platformID)
	q.Set("targ", "self")
	q.Set("view", "brief")
	q.Set("form", "text")
	return baseURL + "?" + q.Encode()
}

// FromPlatform downloads the brief text listing of a platform and returns the
// series that reference it.
func FromPlatform(ctx context.Context, src geo.TextFetcher, baseURL, platformID string) ([]geo.StudyKey, error) {
	body, err := src.Get(ctx, PlatformListingURL(baseURL, platformID))
	if err != nil {
		return nil, fmt.Errorf("platform listing %s: %w", platformID, err)
	}
	return ParsePlatformListing(string(body)), nil
}

// ParsePlatformListing extracts series accessions from lines such as
// "!Platform_series_id = GSE1234". Lines without a "= " separator are skipped.
func ParsePlatformListing(text string) []geo.StudyKey {
	var ids []string
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, DefaultPrefix) {
			continue
		}
		_, value, ok := strings.Cut(line, "= ")
		if !ok {
			continue
		}
		value, _, _ = strings.Cut(value, "\r")
		ids = append(ids, value)
	}
	return Explicit(ids)
}

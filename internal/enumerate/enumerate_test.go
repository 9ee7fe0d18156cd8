package enumerate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

func TestRangeIsInclusive(t *testing.T) {
	t.Parallel()

	require.Equal(t, []geo.StudyKey{"GSE1", "GSE2", "GSE3"}, Range("GSE", 1, 3))
	require.Equal(t, []geo.StudyKey{"GSE7"}, Range("GSE", 7, 7))
	require.Empty(t, Range("GSE", 5, 4))
}

func TestRangeNeverRepeatsKeys(t *testing.T) {
	t.Parallel()

	keys := Range(DefaultPrefix, 1, 500)
	seen := make(map[geo.StudyKey]struct{}, len(keys))
	for _, k := range keys {
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %s", k)
		seen[k] = struct{}{}
	}
	require.Len(t, seen, 500)
}

func TestExplicitNormalizesAndDedupes(t *testing.T) {
	t.Parallel()

	got := Explicit([]string{" gse10 ", "GSE10", "", "GSE11"})
	require.Equal(t, []geo.StudyKey{"GSE10", "GSE11"}, got)
}

func TestParsePlatformListing(t *testing.T) {
	t.Parallel()

	listing := strings.Join([]string{
		"^PLATFORM = GPL570",
		"!Platform_title = [HG-U133_Plus_2] Affymetrix",
		"!Platform_series_id = GSE1001\r",
		"!Platform_series_id = GSE1002\r",
		"!Platform_series_id = GSE1001\r",
		"GSE without separator",
		"!Platform_sample_id = GSM5",
	}, "\n")

	require.Equal(t, []geo.StudyKey{"GSE1001", "GSE1002"}, ParsePlatformListing(listing))
}

func TestFromPlatformUsesBriefTextView(t *testing.T) {
	t.Parallel()

	src := &stubText{body: "!Platform_series_id = GSE42\r\n"}
	keys, err := FromPlatform(context.Background(), src, "https://example.test/acc.cgi", "GPL1")
	require.NoError(t, err)
	require.Equal(t, []geo.StudyKey{"GSE42"}, keys)
	require.Equal(t, "https://example.test/acc.cgi?acc=GPL1&form=text&targ=self&view=brief", src.lastURL)

	src.err = errors.New("boom")
	_, err = FromPlatform(context.Background(), src, "https://example.test/acc.cgi", "GPL1")
	require.EqualError(t, err, "platform listing GPL1: boom")
}

type stubText struct {
	body    string
	err     error
	lastURL string
}

func (s *stubText) Get(_ context.Context, url string) ([]byte, error) {
	s.lastURL = url
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.body), nil
}

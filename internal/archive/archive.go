// Package archive keeps a content-addressed copy of every fetched accession
// page. Archiving is best effort: a failed write is logged and the document
// is still returned to the caller.
package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/geo"
	"github.com/JakeFAU/geo-harvester/internal/metrics"
)

const contentType = "text/html; charset=utf-8"

// Fetcher wraps a geo.DocumentFetcher and writes successful bodies to a
// geo.BlobStore.
type Fetcher struct {
	next   geo.DocumentFetcher
	blobs  geo.BlobStore
	prefix string
	logger *zap.Logger
}

// New wraps next. A nil blob store disables archiving.
func New(next geo.DocumentFetcher, blobs geo.BlobStore, prefix string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:   next,
		blobs:  blobs,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("archive"),
	}
}

// Fetch delegates to the wrapped fetcher and archives the result.
func (f *Fetcher) Fetch(ctx context.Context, key string) (geo.Document, error) {
	doc, err := f.next.Fetch(ctx, key)
	if err != nil || f.blobs == nil {
		return doc, err
	}

	objectPath := ObjectPath(f.prefix, key, doc.Body)
	uri, putErr := f.blobs.PutObject(ctx, objectPath, contentType, doc.Body)
	if putErr != nil {
		metrics.ObserveArchive(false)
		f.logger.Warn("archive write failed",
			zap.String("accession", key),
			zap.String("path", objectPath),
			zap.Error(putErr),
		)
		return doc, nil
	}
	metrics.ObserveArchive(true)
	f.logger.Debug("archived document", zap.String("accession", key), zap.String("uri", uri))
	return doc, nil
}

// ObjectPath returns <prefix>/<kind>/<key>/<sha256>.html.
func ObjectPath(prefix, key string, body []byte) string {
	sum := sha256.Sum256(body)
	return path.Join(prefix, metrics.AccessionKind(key), key, hex.EncodeToString(sum[:])+".html")
}

package geo

import (
	"context"
	"time"
)

// Document is a fetched accession page.
type Document struct {
	Key        string
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// DocumentFetcher retrieves the accession page for a study or sample key.
// A non-success response is reported as *FetchError.
type DocumentFetcher interface {
	Fetch(ctx context.Context, key string) (Document, error)
}

// TextFetcher performs plain GET requests for auxiliary NCBI endpoints.
type TextFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Store opens per-unit sessions against the persistent study table.
type Store interface {
	Open(ctx context.Context) (Session, error)
	Close() error
}

// Session is a storage handle scoped to a single unit of work. Callers must
// Release it on every exit path.
type Session interface {
	EnsureSchema(ctx context.Context) error
	Exists(ctx context.Context, key StudyKey) (bool, error)
	Get(ctx context.Context, key StudyKey) (StudyRecord, error)
	Insert(ctx context.Context, record StudyRecord) error
	UpdateOverallDesign(ctx context.Context, key StudyKey, design *string) (int64, error)
	Release()
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

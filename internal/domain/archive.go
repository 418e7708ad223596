package domain

import "context"

// ArchivedDocument is the canonical certificate document held by the
// content-addressed store.
type ArchivedDocument struct {
	ContentHash string
	Body        []byte
}

// DocumentArchiver serializes a certificate into a canonical document and
// stores it content-addressed. Archival of the same logical certificate is
// deterministic, so retries are idempotent at the storage layer.
type DocumentArchiver interface {
	Archive(ctx context.Context, cert Certificate) (string, error)
	Fetch(ctx context.Context, contentHash string) (*ArchivedDocument, error)
}

package symbol

import "context"

// NodeClient defines the Symbol REST calls this tool makes.
type NodeClient interface {
	// SearchMetadata returns metadata entries matching the query.
	SearchMetadata(ctx context.Context, q MetadataQuery) ([]MetadataEntry, error)

	// Announce submits a signed transaction. A nil error means the node accepted
	// it for processing, not that it was confirmed.
	Announce(ctx context.Context, tx *SignedTransaction) error
}

// Confirmer waits for announced transactions to be confirmed.
type Confirmer interface {
	// Expect marks hash as announced by this process, so an outcome that
	// arrives before AwaitConfirmed is kept. Call it before announcing.
	Expect(hash string)

	// AwaitConfirmed blocks until hash is confirmed, rejected, or ctx ends.
	AwaitConfirmed(ctx context.Context, hash string) error

	// Close closes the underlying connection.
	Close() error
}

// MetadataType is the kind of entity a metadata entry is attached to.
type MetadataType int

// Metadata types.
const (
	MetadataAccount   MetadataType = 0
	MetadataMosaic    MetadataType = 1
	MetadataNamespace MetadataType = 2
)

// MetadataQuery filters GET /metadata.
type MetadataQuery struct {
	Target    Address
	Source    Address
	ScopedKey uint64
	Type      MetadataType
}

// MetadataEntry is a metadata entry as stored on chain.
type MetadataEntry struct {
	CompositeHash string
	Source        Address
	Target        Address
	ScopedKey     uint64
	Type          MetadataType
	ValueSize     int
	Value         []byte
}

package metastore

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"symbol-price-recorder/internal/symbol"
)

// fakeNode is an in-memory ledger. Announced account metadata transactions
// are applied the way a node applies them: XOR the value into the stored one
// and adjust the size by the delta.
type fakeNode struct {
	mu              sync.Mutex
	entries         map[uint64][]byte
	announced       []*symbol.SignedTransaction
	queries         int
	queryErr        error
	announceErr     error
	applyOnAnnounce bool
}

func newFakeNode() *fakeNode {
	return &fakeNode{entries: make(map[uint64][]byte), applyOnAnnounce: true}
}

func (n *fakeNode) SearchMetadata(_ context.Context, q symbol.MetadataQuery) ([]symbol.MetadataEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.queries++
	if n.queryErr != nil {
		return nil, n.queryErr
	}
	value, ok := n.entries[q.ScopedKey]
	if !ok {
		return nil, nil
	}
	return []symbol.MetadataEntry{{
		Source:    q.Source,
		Target:    q.Target,
		ScopedKey: q.ScopedKey,
		ValueSize: len(value),
		Value:     append([]byte(nil), value...),
	}}, nil
}

func (n *fakeNode) Announce(_ context.Context, tx *symbol.SignedTransaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.announceErr != nil {
		return n.announceErr
	}
	n.announced = append(n.announced, tx)
	if !n.applyOnAnnounce {
		return nil
	}

	emb := tx.Payload[168:]
	le := binary.LittleEndian
	key := le.Uint64(emb[72:])
	delta := int(int16(le.Uint16(emb[80:])))
	size := int(le.Uint16(emb[82:]))
	update := emb[84 : 84+size]

	old := n.entries[key]
	merged := make([]byte, len(update))
	copy(merged, update)
	for i := 0; i < len(old) && i < len(merged); i++ {
		merged[i] ^= old[i]
	}
	newSize := len(old) + delta
	if newSize < 0 || newSize > len(merged) {
		return errors.New("fake node: inconsistent size delta")
	}
	if newSize == 0 {
		delete(n.entries, key)
		return nil
	}
	n.entries[key] = merged[:newSize]
	return nil
}

func (n *fakeNode) announceCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.announced)
}

type fakeConfirmer struct {
	err      error
	expected []string
	hashes   []string
}

func (c *fakeConfirmer) Expect(hash string) {
	c.expected = append(c.expected, hash)
}

func (c *fakeConfirmer) AwaitConfirmed(_ context.Context, hash string) error {
	c.hashes = append(c.hashes, hash)
	return c.err
}

func (c *fakeConfirmer) Close() error { return nil }

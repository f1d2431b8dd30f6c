// Package symbol talks to a Symbol node: account metadata queries, transaction
// announcement and confirmation, plus the small amount of transaction layout and
// signing needed to record account metadata from a single account.
package symbol

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Network holds the per-network constants that go into addresses and signatures.
type Network struct {
	Name           string
	ID             byte
	Epoch          time.Time
	GenerationHash [32]byte
}

// Known networks.
var (
	Mainnet = Network{
		Name:           "mainnet",
		ID:             0x68,
		Epoch:          time.Unix(1615853185, 0).UTC(),
		GenerationHash: mustHash32("57F7DA205008026C776CB6AED843393F04CD458E0AA2D9F1D5F31A402072B2D6"),
	}
	Testnet = Network{
		Name:           "testnet",
		ID:             0x98,
		Epoch:          time.Unix(1667250467, 0).UTC(),
		GenerationHash: mustHash32("49D6E1CE276A85B70EAFE52349AACCA389302E7A9754BCF1221E79494FC665A4"),
	}
)

// NetworkByName returns the network for "mainnet" or "testnet".
func NetworkByName(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Mainnet.Name:
		return Mainnet, nil
	case Testnet.Name:
		return Testnet, nil
	default:
		return Network{}, fmt.Errorf("unknown symbol network %q", name)
	}
}

// NetworkTime returns milliseconds since the network epoch.
func (n Network) NetworkTime(t time.Time) uint64 {
	ms := t.Sub(n.Epoch).Milliseconds()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

func (n Network) String() string { return n.Name }

func mustHash32(s string) [32]byte {
	var h [32]byte
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		panic(fmt.Sprintf("invalid 32-byte hash %q", s))
	}
	copy(h[:], b)
	return h
}

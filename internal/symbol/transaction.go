package symbol

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Transaction types and versions laid out by this package.
const (
	TypeAccountMetadata   uint16 = 0x4144
	TypeAggregateComplete uint16 = 0x4141

	accountMetadataVersion   = 1
	aggregateCompleteVersion = 2

	embeddedHeaderSize  = 48
	accountMetadataBody = 36
	aggregateHeaderSize = 168

	// signature(64) + signer(32) follow size and reserved.
	signatureOffset = 8
	signerOffset    = signatureOffset + 64
	// version, network, type, fee, deadline, transactions hash.
	signedDataOffset = signerOffset + 32 + 4
	signedDataSize   = 1 + 1 + 2 + 8 + 8 + 32
)

// Defaults for announced transactions.
const (
	DefaultFeeMultiplier = 100
	DefaultDeadline      = 2 * time.Hour
	MaxValueSize         = math.MaxUint16
)

// ErrBuildTransaction is returned when a transaction cannot be laid out.
var ErrBuildTransaction = errors.New("build transaction")

// AccountMetadata is a metadata entry write scoped to the signer and target account.
type AccountMetadata struct {
	Target    Address
	ScopedKey uint64
	SizeDelta int16
	Value     []byte
}

// SignedTransaction is a signed aggregate ready to announce.
type SignedTransaction struct {
	Payload  []byte
	Hash     [32]byte
	Fee      uint64
	Deadline uint64
}

// PayloadHex returns the payload as uppercase hex, the form PUT /transactions expects.
func (t *SignedTransaction) PayloadHex() string {
	return strings.ToUpper(hex.EncodeToString(t.Payload))
}

// HashHex returns the transaction hash as uppercase hex.
func (t *SignedTransaction) HashHex() string {
	return strings.ToUpper(hex.EncodeToString(t.Hash[:]))
}

// Facade builds signed transactions for one account on one network.
type Facade interface {
	Network() Network
	Address() Address
	SignAccountMetadata(md AccountMetadata) (*SignedTransaction, error)
}

// Signer implements Facade with a local key pair.
type Signer struct {
	network       Network
	keys          *KeyPair
	address       Address
	feeMultiplier uint64
	deadline      time.Duration
	now           func() time.Time
}

// SignerOption configures Signer.
type SignerOption func(*Signer)

// WithFeeMultiplier sets the fee per payload byte.
func WithFeeMultiplier(m uint64) SignerOption {
	return func(s *Signer) {
		s.feeMultiplier = m
	}
}

// WithDeadline sets how long after signing the node may include the transaction.
func WithDeadline(d time.Duration) SignerOption {
	return func(s *Signer) {
		if d > 0 {
			s.deadline = d
		}
	}
}

// WithClock sets the time source used for deadlines.
func WithClock(now func() time.Time) SignerOption {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner creates a Signer for keys on network.
func NewSigner(network Network, keys *KeyPair, opts ...SignerOption) *Signer {
	s := &Signer{
		network:       network,
		keys:          keys,
		address:       AddressFromPublicKey(network, keys.PublicKey()),
		feeMultiplier: DefaultFeeMultiplier,
		deadline:      DefaultDeadline,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Network returns the signer's network.
func (s *Signer) Network() Network { return s.network }

// Address returns the signer's address.
func (s *Signer) Address() Address { return s.address }

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() []byte { return s.keys.PublicKey() }

// SignAccountMetadata wraps md in an aggregate complete transaction and signs it.
func (s *Signer) SignAccountMetadata(md AccountMetadata) (*SignedTransaction, error) {
	embedded, err := s.embedAccountMetadata(md)
	if err != nil {
		return nil, err
	}

	payload := s.aggregate([][]byte{embedded})

	message := make([]byte, 0, 32+signedDataSize)
	message = append(message, s.network.GenerationHash[:]...)
	message = append(message, payload[signedDataOffset:signedDataOffset+signedDataSize]...)
	sig := s.keys.Sign(message)
	copy(payload[signatureOffset:], sig[:])

	return &SignedTransaction{
		Payload:  payload,
		Hash:     transactionHash(payload, s.network.GenerationHash),
		Fee:      binary.LittleEndian.Uint64(payload[signedDataOffset+4:]),
		Deadline: binary.LittleEndian.Uint64(payload[signedDataOffset+12:]),
	}, nil
}

func (s *Signer) embedAccountMetadata(md AccountMetadata) ([]byte, error) {
	if len(md.Value) > MaxValueSize {
		return nil, fmt.Errorf("%w: value is %d bytes, max %d", ErrBuildTransaction, len(md.Value), MaxValueSize)
	}
	if md.Target.IsZero() {
		return nil, fmt.Errorf("%w: empty target address", ErrBuildTransaction)
	}
	if md.Target.NetworkID() != s.network.ID {
		return nil, fmt.Errorf("%w: target %s is not a %s address", ErrBuildTransaction, md.Target, s.network.Name)
	}

	size := embeddedHeaderSize + accountMetadataBody + len(md.Value)
	b := make([]byte, size)
	le := binary.LittleEndian

	le.PutUint32(b[0:], uint32(size))
	copy(b[8:40], s.keys.PublicKey())
	b[44] = accountMetadataVersion
	b[45] = s.network.ID
	le.PutUint16(b[46:], TypeAccountMetadata)

	copy(b[48:72], md.Target[:])
	le.PutUint64(b[72:], md.ScopedKey)
	le.PutUint16(b[80:], uint16(md.SizeDelta))
	le.PutUint16(b[82:], uint16(len(md.Value)))
	copy(b[84:], md.Value)
	return b, nil
}

// aggregate lays out an unsigned aggregate complete around embedded transactions.
func (s *Signer) aggregate(embedded [][]byte) []byte {
	payloadSize := 0
	for _, tx := range embedded {
		payloadSize += padded(len(tx))
	}
	size := aggregateHeaderSize + payloadSize

	b := make([]byte, size)
	le := binary.LittleEndian

	le.PutUint32(b[0:], uint32(size))
	copy(b[signerOffset:], s.keys.PublicKey())
	b[signedDataOffset] = aggregateCompleteVersion
	b[signedDataOffset+1] = s.network.ID
	le.PutUint16(b[signedDataOffset+2:], TypeAggregateComplete)
	le.PutUint64(b[signedDataOffset+4:], uint64(size)*s.feeMultiplier)
	le.PutUint64(b[signedDataOffset+12:], s.network.NetworkTime(s.now().Add(s.deadline)))

	root := merkleRoot(embedded)
	copy(b[signedDataOffset+20:], root[:])
	le.PutUint32(b[160:], uint32(payloadSize))

	off := aggregateHeaderSize
	for _, tx := range embedded {
		copy(b[off:], tx)
		off += padded(len(tx))
	}
	return b
}

// merkleRoot hashes each embedded transaction and folds pairs, repeating the
// last hash on odd levels.
func merkleRoot(embedded [][]byte) [32]byte {
	if len(embedded) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, len(embedded))
	for i, tx := range embedded {
		level[i] = sha3.Sum256(tx)
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha3.New256()
			h.Write(level[i][:])
			h.Write(level[i+1][:])
			var sum [32]byte
			copy(sum[:], h.Sum(nil))
			next = append(next, sum)
		}
		level = next
	}
	return level[0]
}

// transactionHash covers the R half of the signature, the signer, the
// generation hash and the signed header fields.
func transactionHash(payload []byte, generationHash [32]byte) [32]byte {
	h := sha3.New256()
	h.Write(payload[signatureOffset : signatureOffset+32])
	h.Write(payload[signerOffset : signerOffset+32])
	h.Write(generationHash[:])
	h.Write(payload[signedDataOffset : signedDataOffset+signedDataSize])

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

func padded(n int) int {
	return (n + 7) &^ 7
}

package symbol

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"
)

func newTestSigner(t *testing.T, now time.Time) *Signer {
	t.Helper()
	kp, err := NewKeyPair(testPrivateKey)
	require.NoError(t, err)
	return NewSigner(Testnet, kp, WithClock(func() time.Time { return now }))
}

func TestSigner_SignAccountMetadata_Layout(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestSigner(t, now)
	value := []byte("123456789")

	tx, err := s.SignAccountMetadata(AccountMetadata{
		Target:    s.Address(),
		ScopedKey: 0xD20240101C000001,
		SizeDelta: int16(len(value)),
		Value:     value,
	})
	require.NoError(t, err)

	le := binary.LittleEndian
	p := tx.Payload

	// 168 header + 84 embedded header/body + 9 value, padded to 96
	require.Len(t, p, 168+96)
	assert.Equal(t, uint32(len(p)), le.Uint32(p[0:]))
	assert.Equal(t, []byte(s.PublicKey()), p[72:104])
	assert.Equal(t, byte(2), p[108])
	assert.Equal(t, Testnet.ID, p[109])
	assert.Equal(t, TypeAggregateComplete, le.Uint16(p[110:]))
	assert.Equal(t, uint64(len(p))*DefaultFeeMultiplier, le.Uint64(p[112:]))
	assert.Equal(t, tx.Fee, le.Uint64(p[112:]))
	assert.Equal(t, Testnet.NetworkTime(now.Add(2*time.Hour)), le.Uint64(p[120:]))
	assert.Equal(t, uint32(96), le.Uint32(p[160:]))

	embedded := p[168 : 168+93]
	assert.Equal(t, uint32(93), le.Uint32(embedded[0:]))
	assert.Equal(t, []byte(s.PublicKey()), embedded[8:40])
	assert.Equal(t, byte(1), embedded[44])
	assert.Equal(t, Testnet.ID, embedded[45])
	assert.Equal(t, TypeAccountMetadata, le.Uint16(embedded[46:]))
	assert.Equal(t, s.Address().String(), Address(embedded[48:72]).String())
	assert.Equal(t, uint64(0xD20240101C000001), le.Uint64(embedded[72:]))
	assert.Equal(t, uint16(9), le.Uint16(embedded[80:]))
	assert.Equal(t, uint16(9), le.Uint16(embedded[82:]))
	assert.Equal(t, value, embedded[84:93])
	assert.Equal(t, []byte{0, 0, 0}, p[168+93:])

	root := sha3.Sum256(embedded)
	assert.Equal(t, root[:], p[128:160])
}

func TestSigner_SignAccountMetadata_Signature(t *testing.T) {
	s := newTestSigner(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	tx, err := s.SignAccountMetadata(AccountMetadata{Target: s.Address(), ScopedKey: 1, SizeDelta: 3, Value: []byte("abc")})
	require.NoError(t, err)

	p := tx.Payload
	msg := append(append([]byte{}, Testnet.GenerationHash[:]...), p[108:160]...)
	assert.True(t, ed25519.Verify(s.PublicKey(), msg, p[8:72]))

	h := sha3.New256()
	h.Write(p[8:40])
	h.Write(p[72:104])
	h.Write(Testnet.GenerationHash[:])
	h.Write(p[108:160])
	assert.Equal(t, h.Sum(nil), tx.Hash[:])
	assert.Len(t, tx.HashHex(), 64)
	assert.Len(t, tx.PayloadHex(), 2*len(p))
}

// Reference values computed with an independent Ed25519 and catbuffer layout.
func TestSigner_SignAccountMetadata_KnownAnswer(t *testing.T) {
	s := newTestSigner(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	tx, err := s.SignAccountMetadata(AccountMetadata{
		Target:    s.Address(),
		ScopedKey: 0xD20240101C000001,
		SizeDelta: 9,
		Value:     []byte("123456789"),
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(36921378000), tx.Deadline)
	assert.Equal(t, uint64(264*100), tx.Fee)
	assert.Equal(t,
		"EBA42A3F66056B71352B2A60B4C815B528395B09CCF410B6192731C101E8734F"+
			"F985A977EBDBC917A4986497C151775E1EAC430AA00BBC75DC09E3AC37FB760D",
		strings.ToUpper(hex.EncodeToString(tx.Payload[8:72])))
	assert.Equal(t, "A9B8F6712B98F3E98283A172CA095C0B05034368C4D015270899844589A84D45", tx.HashHex())

	sum := sha3.Sum256(tx.Payload)
	assert.Equal(t, "7F23D921B4480FCB48EE709DEDBA1492781B012D84517441DCBFDCAE643109D1",
		strings.ToUpper(hex.EncodeToString(sum[:])))
}

func TestSigner_SignAccountMetadata_NegativeDelta(t *testing.T) {
	s := newTestSigner(t, time.Now())
	old := []byte("123456789")

	tx, err := s.SignAccountMetadata(AccountMetadata{
		Target:    s.Address(),
		ScopedKey: 42,
		SizeDelta: -int16(len(old)),
		Value:     UpdateValue(old, nil),
	})
	require.NoError(t, err)

	embedded := tx.Payload[168:]
	assert.Equal(t, int16(-9), int16(binary.LittleEndian.Uint16(embedded[80:])))
	assert.Equal(t, old, embedded[84:93])
}

func TestSigner_SignAccountMetadata_EmptyValue(t *testing.T) {
	s := newTestSigner(t, time.Now())

	tx, err := s.SignAccountMetadata(AccountMetadata{Target: s.Address(), ScopedKey: 42})
	require.NoError(t, err)
	assert.Len(t, tx.Payload, 168+88)
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(tx.Payload[168+82:]))
}

func TestSigner_SignAccountMetadata_Invalid(t *testing.T) {
	s := newTestSigner(t, time.Now())

	_, err := s.SignAccountMetadata(AccountMetadata{ScopedKey: 1})
	assert.ErrorIs(t, err, ErrBuildTransaction)

	mainnetTarget := AddressFromPublicKey(Mainnet, s.PublicKey())
	_, err = s.SignAccountMetadata(AccountMetadata{Target: mainnetTarget, ScopedKey: 1})
	assert.ErrorIs(t, err, ErrBuildTransaction)

	_, err = s.SignAccountMetadata(AccountMetadata{Target: s.Address(), ScopedKey: 1, Value: make([]byte, MaxValueSize+1)})
	assert.ErrorIs(t, err, ErrBuildTransaction)
}

func TestMerkleRoot(t *testing.T) {
	a, b, c := []byte("a"), []byte("b"), []byte("c")
	ha, hb, hc := sha3.Sum256(a), sha3.Sum256(b), sha3.Sum256(c)

	pair := func(x, y [32]byte) [32]byte {
		return sha3.Sum256(append(append([]byte{}, x[:]...), y[:]...))
	}

	assert.Equal(t, [32]byte{}, merkleRoot(nil))
	assert.Equal(t, ha, merkleRoot([][]byte{a}))
	assert.Equal(t, pair(ha, hb), merkleRoot([][]byte{a, b}))
	assert.Equal(t, pair(pair(ha, hb), pair(hc, hc)), merkleRoot([][]byte{a, b, c}))
}

func TestNetworkTime(t *testing.T) {
	assert.Equal(t, uint64(0), Mainnet.NetworkTime(Mainnet.Epoch))
	assert.Equal(t, uint64(1500), Mainnet.NetworkTime(Mainnet.Epoch.Add(1500*time.Millisecond)))
	assert.Equal(t, uint64(0), Mainnet.NetworkTime(Mainnet.Epoch.Add(-time.Hour)))
}

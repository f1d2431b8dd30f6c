package keycodec

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"symbol-price-recorder/internal/domain"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		name    string
		day     domain.Day
		assetID int
		wantHex string
	}{
		{"first asset", domain.Date(2024, time.January, 1), 1, "D20240101C000001"},
		{"zero asset", domain.Date(2025, time.December, 31), 0, "D20251231C000000"},
		{"max asset", domain.Date(2024, time.February, 29), MaxAssetID, "D20240229C999999"},
		{"padded asset", domain.Date(1999, time.July, 4), 42, "D19990704C000042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Derive(tt.day, tt.assetID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHex, key.Hex())

			// Same inputs always yield the same key.
			again, err := Derive(tt.day, tt.assetID)
			require.NoError(t, err)
			assert.Equal(t, key.Hex(), again.Hex())
		})
	}
}

func TestDerive_NumericValue(t *testing.T) {
	key, err := Derive(domain.Date(2024, time.January, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xD20240101C000001), key.Uint64())
}

func TestDerive_InvalidAssetID(t *testing.T) {
	day := domain.Date(2024, time.January, 1)

	for _, id := range []int{-1, MaxAssetID + 1, 10_000_000} {
		_, err := Derive(day, id)
		assert.True(t, errors.Is(err, ErrInvalidAssetID), "asset %d: got %v", id, err)
	}
}

func TestDerive_InvalidDay(t *testing.T) {
	_, err := Derive(domain.Date(10000, time.January, 1), 1)
	assert.ErrorIs(t, err, ErrInvalidDay)
}

func TestDerive_Injective(t *testing.T) {
	seen := make(map[Key]string)
	start := domain.Date(2023, time.December, 25)
	assets := []int{0, 1, 2, 10, 100, 999, 1000, 123456, MaxAssetID}

	for i := 0; i < 800; i++ {
		day := start.AddDays(i)
		for _, asset := range assets {
			key, err := Derive(day, asset)
			require.NoError(t, err)

			label := fmt.Sprintf("%s/%d", day, asset)
			if prev, ok := seen[key]; ok {
				t.Fatalf("collision: %s and %s both map to %s", prev, label, key.Hex())
			}
			seen[key] = label
		}
	}
	assert.Len(t, seen, 800*len(assets))
}

func TestParse_RoundTrip(t *testing.T) {
	day := domain.Date(2024, time.March, 9)
	key, err := Derive(day, 314)
	require.NoError(t, err)

	gotDay, gotAsset, err := Parse(key)
	require.NoError(t, err)
	assert.True(t, day.Equal(gotDay), "got %s", gotDay)
	assert.Equal(t, 314, gotAsset)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		key  Key
	}{
		{"missing type nibble", Key(0x120240101C000001)},
		{"missing separator", Key(0xD20240101A000001)},
		{"hex digit in date", Key(0xD2024A101C000001)},
		{"impossible date", Key(0xD20240230C000001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.key)
			assert.ErrorIs(t, err, ErrMalformedKey)
		})
	}
}

func TestFromHex(t *testing.T) {
	key, err := FromHex("d20240101c000001")
	require.NoError(t, err)
	assert.Equal(t, "D20240101C000001", key.Hex())

	_, err = FromHex("not-hex")
	assert.ErrorIs(t, err, ErrMalformedKey)
}

// Package keycodec derives the scoped metadata key under which a day's price
// is recorded, and parses it back.
package keycodec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"symbol-price-recorder/internal/domain"
)

// Key layout, read as 16 hex nibbles:
//
//	D YYYYMMDD C NNNNNN
//
// The date and asset digits are decimal, so every nibble between the type and
// separator markers is 0-9 and the mapping is a bijection.
const (
	TypeNibble      = 0xD
	SeparatorNibble = 0xC
	MaxAssetID      = 999_999
	keyHexLen       = 16
)

var (
	// ErrInvalidAssetID is returned when an asset id does not fit in 6 decimal digits.
	ErrInvalidAssetID = errors.New("invalid asset id")

	// ErrInvalidDay is returned when a day cannot be written as 8 decimal digits.
	ErrInvalidDay = errors.New("invalid day")

	// ErrMalformedKey is returned by Parse for keys not produced by Derive.
	ErrMalformedKey = errors.New("malformed metadata key")
)

// Key is a Symbol scoped metadata key.
type Key uint64

// Derive computes the key for (day, assetID).
func Derive(day domain.Day, assetID int) (Key, error) {
	if assetID < 0 || assetID > MaxAssetID {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidAssetID, assetID, MaxAssetID)
	}
	if day.Year() < 0 || day.Year() > 9999 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDay, day)
	}

	s := fmt.Sprintf("%X%s%X%06d", TypeNibble, day.Compact(), SeparatorNibble, assetID)
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDay, day)
	}
	return Key(v), nil
}

// Hex returns the canonical uppercase hexadecimal form, without prefix.
func (k Key) Hex() string {
	return strings.ToUpper(strconv.FormatUint(uint64(k), 16))
}

// String implements fmt.Stringer.
func (k Key) String() string { return k.Hex() }

// Uint64 returns the key as sent in transactions.
func (k Key) Uint64() uint64 { return uint64(k) }

// FromHex parses a hexadecimal key as returned by the node.
func FromHex(s string) (Key, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToUpper(s), "0X"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedKey, s)
	}
	return Key(v), nil
}

// Parse is the inverse of Derive.
func Parse(k Key) (domain.Day, int, error) {
	s := fmt.Sprintf("%016X", uint64(k))
	if len(s) != keyHexLen || s[0] != 'D' || s[9] != 'C' {
		return domain.Day{}, 0, fmt.Errorf("%w: %s", ErrMalformedKey, s)
	}

	datePart, assetPart := s[1:9], s[10:]
	if !allDigits(datePart) || !allDigits(assetPart) {
		return domain.Day{}, 0, fmt.Errorf("%w: %s", ErrMalformedKey, s)
	}

	year, _ := strconv.Atoi(datePart[:4])
	month, _ := strconv.Atoi(datePart[4:6])
	dom, _ := strconv.Atoi(datePart[6:])
	day, err := domain.NewDay(year, time.Month(month), dom)
	if err != nil {
		return domain.Day{}, 0, fmt.Errorf("%w: %s: %v", ErrMalformedKey, s, err)
	}

	assetID, _ := strconv.Atoi(assetPart)
	return day, assetID, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

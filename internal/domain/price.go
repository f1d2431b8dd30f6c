package domain

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// MicroUnits is the number of stored units per unit of fiat currency.
const MicroUnits = 1_000_000

const microShift = 6

// PriceRecord is one day's fiat price for an asset.
// It is never persisted as a struct; only EncodePrice(Price) reaches the ledger.
type PriceRecord struct {
	Day     Day
	AssetID int             // numeric asset id embedded in the metadata key
	Price   decimal.Decimal // fiat price, strictly positive
}

// EncodePrice returns the stored value for price: round(price * 1e6) written
// as a base-10 integer string. Halves round away from zero.
func EncodePrice(price decimal.Decimal) []byte {
	micros := price.Shift(microShift).Round(0)
	return []byte(micros.String())
}

// DecodePrice parses a stored value back into a price.
func DecodePrice(value []byte) (decimal.Decimal, error) {
	micros, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode stored price %q: %w", string(value), err)
	}
	return decimal.New(micros, -microShift), nil
}

// StoredMicros returns the integer held by a stored value.
func StoredMicros(price decimal.Decimal) int64 {
	return price.Shift(microShift).Round(0).IntPart()
}

package models

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// OCCSymbol builds an OCC option symbol: UNDERLYING + YYMMDD + C/P + strike*1000 zero-padded to 8 digits.
func OCCSymbol(underlying string, expiration time.Time, typ OptionType, strike float64) string {
	flag := "P"
	if typ == OptionCall {
		flag = "C"
	}
	return fmt.Sprintf("%s%s%s%08d", underlying, expiration.Format("060102"), flag,
		int64(math.Round(strike*1000)))
}

// OCCComponents is a parsed OCC option symbol.
type OCCComponents struct {
	Underlying string
	Expiration time.Time
	Type       OptionType
	Strike     float64
}

// ParseOCCSymbol parses an OCC option symbol. The trailing 15 characters are
// the date, right and strike; everything before them is the underlying.
func ParseOCCSymbol(symbol string) (OCCComponents, error) {
	const suffixLen = 15
	if len(symbol) <= suffixLen {
		return OCCComponents{}, fmt.Errorf("occ symbol %q too short", symbol)
	}
	root := symbol[:len(symbol)-suffixLen]
	rest := symbol[len(symbol)-suffixLen:]

	exp, err := time.Parse("060102", rest[:6])
	if err != nil {
		return OCCComponents{}, fmt.Errorf("occ symbol %q: invalid date: %w", symbol, err)
	}

	var typ OptionType
	switch rest[6] {
	case 'C':
		typ = OptionCall
	case 'P':
		typ = OptionPut
	default:
		return OCCComponents{}, fmt.Errorf("occ symbol %q: invalid option type %q", symbol, rest[6])
	}

	digits := rest[7:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return OCCComponents{}, fmt.Errorf("occ symbol %q: invalid strike %q", symbol, digits)
		}
	}
	raw, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return OCCComponents{}, fmt.Errorf("occ symbol %q: invalid strike: %w", symbol, err)
	}

	return OCCComponents{
		Underlying: root,
		Expiration: exp,
		Type:       typ,
		Strike:     float64(raw) / 1000,
	}, nil
}

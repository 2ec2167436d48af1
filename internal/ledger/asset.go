package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrSymbolMismatch is returned when arithmetic or comparison mixes
	// assets of different symbols or precisions.
	ErrSymbolMismatch = errors.New("asset symbol mismatch")

	ErrInvalidAsset = errors.New("invalid asset string")
)

// Symbol identifies a fungible token: an upper-case code plus the number of
// decimal places every quantity of that token carries. Two symbols are only
// interchangeable when both code and precision match.
type Symbol struct {
	Code      string
	Precision int32
}

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// ParseSymbol parses the "<precision>,<CODE>" form produced by String.
func ParseSymbol(raw string) (Symbol, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	var precision int32
	if _, err := fmt.Sscanf(parts[0], "%d", &precision); err != nil {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	if !validCode(parts[1]) {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	return Symbol{Code: parts[1], Precision: precision}, nil
}

// Asset is a fixed-point quantity of one token, e.g. "100.0000 SHIT".
// The amount always carries exactly Symbol.Precision decimal places.
type Asset struct {
	Amount decimal.Decimal
	Symbol Symbol
}

// NewAsset builds an asset from an integer count of the smallest unit.
func NewAsset(units int64, symbol Symbol) Asset {
	return Asset{
		Amount: decimal.New(units, -symbol.Precision),
		Symbol: symbol,
	}
}

// ZeroAsset returns the zero quantity of the given symbol.
func ZeroAsset(symbol Symbol) Asset {
	return NewAsset(0, symbol)
}

// ParseAsset parses the canonical "<amount> <CODE>" form. The precision is
// taken from the number of decimal places written, so "100.0000 SHIT" and
// "100.00 SHIT" are different symbols.
func ParseAsset(raw string) (Asset, error) {
	parts := strings.Fields(strings.TrimSpace(raw))
	if len(parts) != 2 {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	amount, err := decimal.NewFromString(parts[0])
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	if !validCode(parts[1]) {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidAsset, raw)
	}
	var precision int32
	if idx := strings.IndexByte(parts[0], '.'); idx >= 0 {
		precision = int32(len(parts[0]) - idx - 1)
	}
	return Asset{
		Amount: amount,
		Symbol: Symbol{Code: parts[1], Precision: precision},
	}, nil
}

// MustParseAsset is ParseAsset for literals in wiring and tests.
func MustParseAsset(raw string) Asset {
	a, err := ParseAsset(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Asset) String() string {
	return a.Amount.StringFixed(a.Symbol.Precision) + " " + a.Symbol.Code
}

func (a Asset) IsPositive() bool { return a.Amount.IsPositive() }
func (a Asset) IsZero() bool     { return a.Amount.IsZero() }

// SameSymbol reports whether b carries the identical code and precision.
func (a Asset) SameSymbol(b Asset) bool { return a.Symbol == b.Symbol }

// Equal is an exact match on symbol, precision and amount.
func (a Asset) Equal(b Asset) bool {
	return a.SameSymbol(b) && a.Amount.Equal(b.Amount)
}

func (a Asset) Add(b Asset) (Asset, error) {
	if !a.SameSymbol(b) {
		return Asset{}, ErrSymbolMismatch
	}
	return Asset{Amount: a.Amount.Add(b.Amount), Symbol: a.Symbol}, nil
}

func (a Asset) Sub(b Asset) (Asset, error) {
	if !a.SameSymbol(b) {
		return Asset{}, ErrSymbolMismatch
	}
	return Asset{Amount: a.Amount.Sub(b.Amount), Symbol: a.Symbol}, nil
}

// Cmp returns -1, 0 or 1; both assets must share a symbol.
func (a Asset) Cmp(b Asset) (int, error) {
	if !a.SameSymbol(b) {
		return 0, ErrSymbolMismatch
	}
	return a.Amount.Cmp(b.Amount), nil
}

// ScaleRatio multiplies the amount by num/den, truncating to the asset's
// precision. Used for template token shares and trait-factor payouts.
func (a Asset) ScaleRatio(num, den decimal.Decimal) Asset {
	scaled := a.Amount.Mul(num).Div(den).Truncate(a.Symbol.Precision)
	return Asset{Amount: scaled, Symbol: a.Symbol}
}

// DivUint divides the amount by n, truncating to the asset's precision.
func (a Asset) DivUint(n uint32) Asset {
	return Asset{
		Amount: a.Amount.Div(decimal.NewFromInt(int64(n))).Truncate(a.Symbol.Precision),
		Symbol: a.Symbol,
	}
}

// Value stores the canonical string form in the database.
func (a Asset) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan restores an asset from its canonical string form.
func (a *Asset) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Asset", src)
	}
	parsed, err := ParseAsset(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Asset) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseAsset(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func validCode(code string) bool {
	if len(code) == 0 || len(code) > 7 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

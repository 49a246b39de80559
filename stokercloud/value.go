package stokercloud

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is the physical unit attached to a Value.
type Unit string

const (
	UnitKWh      Unit = "kwh"
	UnitPercent  Unit = "pct"
	UnitDegree   Unit = "deg"
	UnitKilogram Unit = "kg"
	UnitGram     Unit = "g"
)

// Value is a decimal reading tagged with its unit.
type Value struct {
	Amount decimal.Decimal
	Unit   Unit
}

// NewValue parses raw as a decimal number.
func NewValue(raw string, unit Unit) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Value{}, fmt.Errorf("stokercloud: parse %s value %q: %w", unit, raw, err)
	}
	return Value{Amount: d, Unit: unit}, nil
}

// Equal reports whether both values have the same unit and numerically equal
// amounts, so 65 and 65.0 degrees compare equal.
func (v Value) Equal(other Value) bool {
	return v.Unit == other.Unit && v.Amount.Equal(other.Amount)
}

// Float64 returns the amount as a float, for consumers that cannot use
// decimals.
func (v Value) Float64() float64 {
	f, _ := v.Amount.Float64()
	return f
}

func (v Value) String() string {
	return fmt.Sprintf("%s %s", v.Amount, v.Unit)
}

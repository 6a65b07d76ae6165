package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToDecimal coerces a payload value to an exact decimal. JSON numbers
// unmarshal to float64, the common path; NewFromFloat converts to an
// exact decimal representation.
func ToDecimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat(float64(val)), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case string:
		d, err := decimal.NewFromString(val)
		if err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// Stringify renders a payload value for distinct-value tracking.
// Numeric values normalize through decimal so 3, 3.0 and "3" collapse to
// one distinct value.
func Stringify(v interface{}) string {
	if d, ok := ToDecimal(v); ok {
		return d.String()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

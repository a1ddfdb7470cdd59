package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/shopspring/decimal"
)

// MarshalDecimal writes d as a bare JSON number so amounts keep their scale.
func MarshalDecimal(d decimal.Decimal) graphql.Marshaler {
	return graphql.WriterFunc(func(w io.Writer) {
		w.Write([]byte(d.String()))
	})
}

// UnmarshalDecimal accepts numbers and money-formatted strings such as "20,000",
// "USD 1,250.50" or "-€300".
func UnmarshalDecimal(i interface{}) (decimal.Decimal, error) {
	switch v := i.(type) {
	case decimal.Decimal:
		return v, nil
	case json.Number:
		return decimal.NewFromString(v.String())
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		s := strings.TrimSpace(v)
		neg := false
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			switch {
			case r >= '0' && r <= '9', r == '.':
				b.WriteRune(r)
			case r == '-' && b.Len() == 0:
				neg = true
			}
		}
		clean := b.String()
		if clean == "" {
			return decimal.Zero, fmt.Errorf("invalid decimal %q", v)
		}
		if neg {
			clean = "-" + clean
		}
		return decimal.NewFromString(clean)
	default:
		return decimal.Zero, fmt.Errorf("invalid decimal of type %T", i)
	}
}

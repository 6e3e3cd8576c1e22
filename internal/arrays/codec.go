package arrays

import (
	"strconv"
	"strings"

	"github.com/jackc/pgtype"
	"github.com/shopspring/decimal"
)

// ElementKind classifies how a scalar array element should be
// interpreted/coerced, resolved from the array's element OID.
type ElementKind int

const (
	KindText ElementKind = iota
	KindBool
	KindInt
	KindFloat
	KindNumeric
)

// KindForOID maps a column/parameter OID to the coercion behavior its
// array elements should use. Unrecognized OIDs fall back to KindText,
// which performs no coercion beyond literal quoting/unquoting.
func KindForOID(oid uint32) ElementKind {
	switch oid {
	case pgtype.BoolOID:
		return KindBool
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return KindInt
	case pgtype.Float4OID, pgtype.Float8OID:
		return KindFloat
	case pgtype.NumericOID:
		return KindNumeric
	default:
		return KindText
	}
}

// CoerceText converts a single decoded array element's raw text into the
// canonical string representation for kind, validating it along the way.
// Integer elements are validated with a 64-bit parse and then returned as
// the original text, so every int8 value round-trips exactly; text outside
// the int64 range is rejected as malformed.
func CoerceText(kind ElementKind, text string) (string, error) {
	switch kind {
	case KindBool:
		switch strings.ToLower(text) {
		case "t", "true":
			return "t", nil
		default:
			return "f", nil
		}
	case KindInt:
		if _, err := strconv.ParseInt(text, 10, 64); err != nil {
			return "", malformedErr("invalid integer array element " + strconv.Quote(text))
		}
		return text, nil
	case KindFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return "", malformedErr("invalid float array element " + strconv.Quote(text))
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case KindNumeric:
		d, err := decimal.NewFromString(text)
		if err != nil {
			return "", malformedErr("invalid numeric array element " + strconv.Quote(text))
		}
		return d.String(), nil
	default:
		return text, nil
	}
}

// CoerceValues walks a decoded array tree, coercing every scalar leaf
// according to kind, and returns the coerced tree as a new slice; values
// itself is left unmodified.
func CoerceValues(kind ElementKind, values []Value) ([]Value, error) {
	out := make([]Value, len(values))
	for i, v := range values {
		switch {
		case v.Null:
			out[i] = v
		case v.Elements != nil:
			nested, err := CoerceValues(kind, v.Elements)
			if err != nil {
				return nil, err
			}
			out[i] = Value{Elements: nested}
		default:
			text, err := CoerceText(kind, v.Text)
			if err != nil {
				return nil, err
			}
			out[i] = Value{Text: text}
		}
	}
	return out, nil
}

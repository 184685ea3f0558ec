package dataset

import (
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/labdash/internal/table"
)

// nullTokens are cell spellings read as missing. "." is the SAS missing value
// that shows up in exported ADaM datasets.
var nullTokens = map[string]bool{
	"":     true,
	".":    true,
	"NA":   true,
	"N/A":  true,
	"NaN":  true,
	"nan":  true,
	"NULL": true,
	"null": true,
}

func isNull(s string) bool { return nullTokens[strings.TrimSpace(s)] }

func parseInt(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	// integral floats such as "4.0" are common in exported visit columns
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// inferKind picks the narrowest kind every non-null value fits, in the order
// flag, integer, float, string.
func inferKind(values []string) table.Kind {
	isFlag, isInt, isFloat, seen := true, true, true, false
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if isNull(v) {
			continue
		}
		seen = true
		if v != "Y" && v != "N" {
			isFlag = false
		}
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if !isFlag && !isInt && !isFloat {
			break
		}
	}
	switch {
	case !seen:
		return table.KindString
	case isFlag:
		return table.KindFlag
	case isInt:
		return table.KindInt
	case isFloat:
		return table.KindFloat
	default:
		return table.KindString
	}
}

// parseCell converts raw text to a value of the given kind. Text that does
// not parse in a numeric column is an error so malformed files fail loudly.
func parseCell(raw string, kind table.Kind) (table.Value, bool) {
	v := strings.TrimSpace(raw)
	if isNull(v) {
		return table.Null(kind), true
	}
	switch kind {
	case table.KindInt:
		i, ok := parseInt(v)
		if !ok {
			return table.Null(kind), false
		}
		return table.Int(i), true
	case table.KindFloat:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return table.Null(kind), false
		}
		return table.Float(f), true
	case table.KindFlag:
		return table.Flag(v), true
	default:
		return table.Str(v), true
	}
}

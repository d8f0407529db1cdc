package core

import (
	"strconv"
	"strings"
)

// Normalize converts v into one of the scalar kinds a Record may hold.
// Unsupported kinds and nil return nil.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string, bool, int64, float64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint:
		return int64(t)
	case uint32:
		return int64(t)
	case uint16:
		return int64(t)
	case uint8:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return nil
	}
}

// ParseCell infers a scalar from a tabular cell.
// Empty cells are absent (nil); true/false become bools; integers int64;
// decimals float64; anything else stays a string.
func ParseCell(cell string) any {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return cell
}

// CellKind is the scalar kind shared by the cells of one column.
type CellKind int

// Column kinds, from the widest to the narrowest.
const (
	CellString CellKind = iota
	CellBool
	CellInt
	CellFloat
)

// InferColumn returns the narrowest kind every non-empty cell of a column
// parses as. A column mixing kinds, or holding only empty cells, is text.
func InferColumn(cells []string) CellKind {
	kind, seen := CellString, false
	for _, cell := range cells {
		s := strings.TrimSpace(cell)
		if s == "" {
			continue
		}
		k := cellKind(s)
		switch {
		case !seen:
			kind, seen = k, true
		case k == kind:
		case isNumeric(k) && isNumeric(kind):
			kind = CellFloat
		default:
			return CellString
		}
		if kind == CellString {
			return CellString
		}
	}
	return kind
}

func cellKind(s string) CellKind {
	switch strings.ToLower(s) {
	case "true", "false":
		return CellBool
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return CellInt
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return CellFloat
	}
	return CellString
}

func isNumeric(k CellKind) bool {
	return k == CellInt || k == CellFloat
}

// ParseAs converts a cell to kind, as inferred for its column.
// Empty cells are absent (nil); text cells keep their original spelling.
func ParseAs(cell string, kind CellKind) any {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	switch kind {
	case CellBool:
		return strings.EqualFold(s, "true")
	case CellInt:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	case CellFloat:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return cell
}

// Truthy reports the boolean reading of a scalar. Absent values are false.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return strings.TrimSpace(t) != ""
	default:
		return false
	}
}

// FormatValue renders a scalar the way it appears in entity identifiers.
// Whole floats print without a fractional part so 101.0 and 101 agree.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

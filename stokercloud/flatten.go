package stokercloud

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Separator joins path segments in flattened keys.
const Separator = "_"

// Flat maps an underscore-joined path to a leaf scalar. Values are float64,
// string, bool or nil (JSON null).
type Flat map[string]any

// Flatten walks node depth-first in document order and emits one entry per
// leaf scalar. Object keys and array indices are joined with Separator; empty
// objects and arrays produce no entries.
//
// Keys that themselves contain Separator can collide with other paths. The
// entry visited last in document order wins.
//
// JSON numbers become float64, so integers beyond 2^53 lose precision. The
// service reports readings as strings, which are kept verbatim.
func Flatten(node gjson.Result) Flat {
	out := Flat{}
	flatten(out, node, "")
	return out
}

func flatten(out Flat, node gjson.Result, prefix string) {
	switch {
	case node.IsObject():
		node.ForEach(func(key, value gjson.Result) bool {
			flatten(out, value, prefix+key.String()+Separator)
			return true
		})
	case node.IsArray():
		i := 0
		node.ForEach(func(_, value gjson.Result) bool {
			flatten(out, value, prefix+strconv.Itoa(i)+Separator)
			i++
			return true
		})
	default:
		out[strings.TrimSuffix(prefix, Separator)] = node.Value()
	}
}

// String returns the value at key formatted for display, and whether the key
// is present.
func (f Flat) String(key string) (string, bool) {
	v, ok := f[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", true
}

// Float returns the value at key as a number. Numeric strings are parsed,
// since the service reports most readings as strings.
func (f Flat) Float(key string) (float64, bool) {
	switch t := f[key].(type) {
	case float64:
		return t, true
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return v, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Clone returns a shallow copy of f.
func (f Flat) Clone() Flat {
	out := make(Flat, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

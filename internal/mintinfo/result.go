package mintinfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultDecimals applies when a result carries no usable decimals field.
const DefaultDecimals = 6

const maxDecimals = 36

// Result is a decoded mint-info payload. Numbers stay json.Number so raw
// base-unit integers keep every digit.
type Result map[string]any

// Decode parses a mint-info body. The top level must be a JSON object.
func Decode(data []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("mintinfo: decode result: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("mintinfo: decode result: not an object")
	}
	return Result(out), nil
}

// Decimals returns the token's decimals, or def when absent or unparseable.
func (r Result) Decimals(def int) int {
	v, ok := r["decimals"]
	if !ok || v == nil {
		return def
	}
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > maxDecimals {
		return def
	}
	return n
}

// Object returns the nested object stored under key.
func (r Result) Object(key string) (map[string]any, bool) {
	v, ok := r[key].(map[string]any)
	return v, ok
}

// HolderStats returns the "holderStats" object.
func (r Result) HolderStats() (map[string]any, bool) { return r.Object("holderStats") }

// MintStats returns the "mintStats" object.
func (r Result) MintStats() (map[string]any, bool) { return r.Object("mintStats") }

// Scalar renders a leaf value as the raw text a user would see.
func Scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case json.Number:
		return t.String(), true
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return string(b), true
	}
}

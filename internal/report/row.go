package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Row is one JSON object from the backend (a scorecard row, a stats row or a
// raw telemetry record). Key order is preserved from the wire so that
// derived column sets (CSV export) follow the backend's ordering.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow builds a row from alternating key/value pairs. It panics on an odd
// argument count or a non-string key; intended for fixtures and tests.
func NewRow(kv ...any) Row {
	if len(kv)%2 != 0 {
		panic("report.NewRow: odd number of arguments")
	}
	r := Row{}
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("report.NewRow: key %v is not a string", kv[i]))
		}
		r.Set(k, kv[i+1])
	}
	return r
}

// Set assigns v to key, appending key to the order if new.
func (r *Row) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Clone returns a copy that can be modified without touching r.
func (r Row) Clone() Row {
	out := Row{keys: append([]string(nil), r.keys...), values: make(map[string]any, len(r.values))}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// Keys returns the row's keys in wire order.
func (r Row) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r Row) Len() int { return len(r.keys) }

// Get returns the raw value for key. Missing keys and JSON null both
// report a nil value; ok distinguishes them.
func (r Row) Get(key string) (v any, ok bool) {
	v, ok = r.values[key]
	return v, ok
}

// Value returns the value for key or nil.
func (r Row) Value(key string) any {
	return r.values[key]
}

// String returns the value for key rendered as text. nil renders as "".
func (r Row) String(key string) string {
	return FormatCell(r.values[key])
}

// Float returns a numeric value for key. Numeric strings are accepted.
func (r Row) Float(key string) (float64, bool) {
	switch v := r.values[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

// Device returns the row's device identifier.
func (r Row) Device() string {
	return r.String(DeviceKey)
}

// Contains reports whether any cell's text contains needle, ignoring case.
// An empty needle matches every row.
func (r Row) Contains(needle string) bool {
	if needle == "" {
		return true
	}
	needle = strings.ToLower(needle)
	for _, k := range r.keys {
		if strings.Contains(strings.ToLower(FormatCell(r.values[k])), needle) {
			return true
		}
	}
	return false
}

// FormatCell renders a decoded JSON value as display/CSV text: nil is empty,
// integral floats drop the fraction, composite values are re-encoded.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// UnmarshalJSON decodes an object while recording key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("report: row must be a JSON object, got %v", tok)
	}
	*r = Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("report: unexpected row key %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("report: decode %q: %w", key, err)
		}
		r.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the row with keys in wire order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("report: encode %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

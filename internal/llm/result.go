package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Result is model output that can be queried by field name.
type Result interface {
	Extract(field string) (any, bool)
	Raw() string
}

// StructResult looks fields up on a decoded struct by json tag or field name.
type StructResult struct {
	Value any
	Text  string
}

// Extract implements Result.
func (r StructResult) Extract(field string) (any, bool) {
	v := reflect.ValueOf(r.Value)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := strings.Split(sf.Tag.Get("json"), ",")[0]
		if name == field || strings.EqualFold(sf.Name, field) {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

// Raw implements Result.
func (r StructResult) Raw() string { return r.Text }

// MapResult looks fields up by key.
type MapResult struct {
	Values map[string]any
	Text   string
}

// Extract implements Result.
func (r MapResult) Extract(field string) (any, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Raw implements Result.
func (r MapResult) Raw() string { return r.Text }

// RawResult is unstructured text; every field resolves to the text itself.
type RawResult struct {
	Text string
}

// Extract implements Result.
func (r RawResult) Extract(string) (any, bool) { return r.Text, true }

// Raw implements Result.
func (r RawResult) Raw() string { return r.Text }

// ExtractValue returns the field value with its type, or nil when absent.
func ExtractValue(r Result, field string) any {
	if r == nil {
		return nil
	}
	v, ok := r.Extract(field)
	if !ok {
		return nil
	}
	return v
}

// ExtractString returns the field value as a string, or "" when absent.
func ExtractString(r Result, field string) string {
	switch v := ExtractValue(r, field).(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// ParseStructured decodes model text against schema. Text that is not a JSON object
// becomes a RawResult.
func ParseStructured(text string, schema Schema) Result {
	body := extractJSONObject(text)
	if body == "" {
		return RawResult{Text: text}
	}
	if schema.New != nil {
		target := schema.New()
		if err := json.Unmarshal([]byte(body), target); err == nil {
			return StructResult{Value: target, Text: text}
		}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return RawResult{Text: text}
	}
	return MapResult{Values: values, Text: text}
}

// extractJSONObject returns the outermost {...} span of raw, or "" when there is none.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return ""
}

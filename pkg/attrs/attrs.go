// Package attrs works with slog-style key/value argument lists so the same
// list can feed a log line and a trace span event.
package attrs

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// ExtractString returns the value for key in a [k1, v1, k2, v2, ...] list.
// Strings and fmt.Stringer values (typed IDs) are returned as text; anything
// else, or a missing key, yields "".
func ExtractString(kv []any, key string) string {
	for i := 0; i < len(kv)-1; i += 2 {
		k, ok := kv[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			return v
		case fmt.Stringer:
			return v.String()
		}
	}
	return ""
}

// ToOtel converts a key/value list to span attributes. Unsupported value types
// are rendered with %v; a dangling key is dropped.
func ToOtel(kv []any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i < len(kv)-1; i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case string:
			out = append(out, attribute.String(k, v))
		case int:
			out = append(out, attribute.Int(k, v))
		case int64:
			out = append(out, attribute.Int64(k, v))
		case bool:
			out = append(out, attribute.Bool(k, v))
		case float64:
			out = append(out, attribute.Float64(k, v))
		case fmt.Stringer:
			out = append(out, attribute.String(k, v.String()))
		case error:
			out = append(out, attribute.String(k, v.Error()))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", v)))
		}
	}
	return out
}

package model

import (
	"encoding/json"
	"fmt"
)

// Portable converts a snippet result into plain JSON data: nil, bool,
// float64, string, []any or map[string]any. Values that cannot be encoded
// are rendered with %v.
func Portable(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}

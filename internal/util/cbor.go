package util

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// RenderCBORPretty decodes a CBOR item and renders it as indented JSON.
// Byte strings are shown in CBOR diagnostic notation (h'..'). Map keys found
// in labels are replaced with their names, so integer-keyed structures read
// like the Go types they came from.
func RenderCBORPretty(data []byte, labels map[uint64]string) (string, error) {
	var decoded any
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decode CBOR: %w", err)
	}

	pretty, err := json.MarshalIndent(toJSONValue(decoded, labels), "", "  ")
	if err != nil {
		return "", err
	}
	return string(pretty), nil
}

func toJSONValue(value any, labels map[uint64]string) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = toJSONValue(elem, labels)
		}
		return out
	case map[any]any:
		// encoding/json sorts map keys on output
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[labelFor(key, labels)] = toJSONValue(val, labels)
		}
		return out
	case []byte:
		return fmt.Sprintf("h'%x'", v)
	case cbor.Tag:
		return map[string]any{
			"_cborTag": v.Number,
			"content":  toJSONValue(v.Content, labels),
		}
	default:
		return v
	}
}

func labelFor(key any, labels map[uint64]string) string {
	switch k := key.(type) {
	case uint64:
		if name, ok := labels[k]; ok {
			return name
		}
		return fmt.Sprint(k)
	case string:
		return k
	case []byte:
		return fmt.Sprintf("h'%x'", k)
	default:
		return fmt.Sprint(k)
	}
}

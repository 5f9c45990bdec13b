package demux

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/yutopp/go-amf0"
)

const onMetaData = "onMetaData"

// parseScript decodes an AMF0 script tag. It returns nil without error for
// script data other than onMetaData.
func parseScript(data []byte) (map[string]any, error) {
	dec := amf0.NewDecoder(bytes.NewReader(data))

	var name string
	if err := dec.Decode(&name); err != nil {
		return nil, fmt.Errorf("decode script name: %w", err)
	}
	if name != onMetaData {
		return nil, nil
	}

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	m, ok := normalize(v).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s value is %T, not an object", name, v)
	}
	return m, nil
}

// normalize rewrites the decoder's object and array types as plain
// map[string]any and []any so callers can marshal or inspect them without
// importing amf0.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

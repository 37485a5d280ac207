package domain

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/couchcryptid/blitz-stream-collector/internal/lzw"
)

// compressedField is the wrapper field some feed message types use to carry
// an LZW-compressed inner document.
const compressedField = "data"

// Normalize converts one raw feed frame into a Record. It never fails:
// decode and parse errors degrade to storing the frame verbatim under
// raw_data rather than dropping the message.
//
// Resolution order mirrors the original collector: structured parse of the
// frame itself, then LZW decode of the whole frame followed by a structured
// parse, then raw fallback.
func Normalize(raw []byte) Record {
	rec := Record{
		Timestamp: clock.Now().UTC(),
		DataType:  DataTypeRaw,
		Fields:    make(map[string]any),
	}

	if populate(&rec, raw) {
		rec.DataType = DataTypeJSON
		return rec
	}

	decoded, err := lzw.DecodeString(string(raw))
	if err != nil {
		rec.Fields[FieldRawData] = string(raw)
		return rec
	}
	if populate(&rec, []byte(decoded)) {
		rec.DataType = DataTypeJSON
		return rec
	}

	rec.Fields[FieldRawData] = decoded
	return rec
}

// populate merges a structured payload into the record. Objects contribute
// their fields directly (expanding an embedded compressed field when
// present); arrays and scalars land under the fallback fields, matching the
// original collector.
func populate(rec *Record, payload []byte) bool {
	v, ok := parseJSON(payload)
	if !ok {
		return false
	}

	switch doc := v.(type) {
	case map[string]any:
		for k, val := range doc {
			rec.Fields[k] = val
		}
		expandCompressed(rec)
	case []any:
		if data, err := json.Marshal(doc); err == nil {
			rec.Fields[FieldListData] = string(data)
		}
	default:
		rec.Fields[FieldJSONData] = formatValue(v)
	}
	return true
}

// expandCompressed replaces a string "data" field with the fields of the
// JSON object it decompresses to. A "data" field that does not decode to a
// JSON object is left untouched; decoded fields win over wrapper fields of
// the same name.
func expandCompressed(rec *Record) {
	blob, ok := rec.Fields[compressedField].(string)
	if !ok {
		return
	}
	decoded, err := lzw.DecodeString(blob)
	if err != nil {
		return
	}
	obj, ok := parseObject([]byte(decoded))
	if !ok {
		return
	}

	delete(rec.Fields, compressedField)
	for k, val := range obj {
		rec.Fields[k] = val
	}
}

// parseJSON parses a complete JSON document, keeping numbers as json.Number
// so nanosecond strike timestamps survive without float64 rounding. Trailing
// content disqualifies the payload.
func parseJSON(payload []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}

func parseObject(payload []byte) (map[string]any, bool) {
	v, ok := parseJSON(payload)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

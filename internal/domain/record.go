package domain

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// Record field and tag constants. The synthetic fields are stamped on every
// record and can never be shadowed by payload fields.
const (
	FieldTimestamp = "timestamp"
	FieldDataType  = "data_type"
	FieldRawData   = "raw_data"
	FieldListData  = "list_data"
	FieldJSONData  = "json_data"

	DataTypeJSON = "json"
	DataTypeRaw  = "raw"
)

// TimeFormat is how capture timestamps are rendered in the journal and CSV.
const TimeFormat = time.RFC3339Nano

// Record is one normalized feed message: a dynamic field map plus the two
// synthetic capture fields. Immutable once handed to the sink.
type Record struct {
	Timestamp time.Time
	DataType  string
	Fields    map[string]any
}

// MarshalJSON flattens the record into a single self-describing object. The
// synthetic fields are written last so they win over any payload field of
// the same name.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		m[k] = v
	}
	m[FieldTimestamp] = r.Timestamp.Format(TimeFormat)
	m[FieldDataType] = r.DataType
	return json.Marshal(m)
}

// UnmarshalJSON restores a record from its journal line form.
func (r *Record) UnmarshalJSON(data []byte) error {
	m, ok := parseObject(data)
	if !ok {
		return fmt.Errorf("record: not a JSON object")
	}

	if s, sok := m[FieldTimestamp].(string); sok {
		ts, err := time.Parse(TimeFormat, s)
		if err != nil {
			return fmt.Errorf("record: parse timestamp: %w", err)
		}
		r.Timestamp = ts
	}
	if s, sok := m[FieldDataType].(string); sok {
		r.DataType = s
	}
	delete(m, FieldTimestamp)
	delete(m, FieldDataType)
	r.Fields = m
	return nil
}

// FieldNames returns the payload field names in sorted order.
func (r Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Value renders one column for tabular output. Unknown columns yield an
// empty cell; composite values are re-serialized as JSON.
func (r Record) Value(column string) string {
	switch column {
	case FieldTimestamp:
		return r.Timestamp.Format(TimeFormat)
	case FieldDataType:
		return r.DataType
	}
	v, ok := r.Fields[column]
	if !ok {
		return ""
	}
	return formatValue(v)
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(data)
	}
}

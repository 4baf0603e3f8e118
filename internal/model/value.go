package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind is the type of a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindNull
	KindBoolean
	KindInteger
	KindDouble
	KindTimestamp
	KindString
	KindBytes
	KindReference
	KindGeoPoint
	KindArray
	KindMap
)

// Value is a Firestore value. Exactly one member is set; Null marks the
// null value.
type Value struct {
	Null           bool
	BooleanValue   *bool
	IntegerValue   *int64
	DoubleValue    *float64
	TimestampValue *time.Time
	StringValue    *string
	BytesValue     []byte
	ReferenceValue *string
	GeoPointValue  *LatLng
	ArrayValue     *ArrayValue
	MapValue       *MapValue
}

func NullValue() *Value                 { return &Value{Null: true} }
func BoolValue(b bool) *Value           { return &Value{BooleanValue: &b} }
func IntegerValue(i int64) *Value       { return &Value{IntegerValue: &i} }
func DoubleValue(f float64) *Value      { return &Value{DoubleValue: &f} }
func TimestampValue(t time.Time) *Value { t = t.UTC(); return &Value{TimestampValue: &t} }
func StringValue(s string) *Value       { return &Value{StringValue: &s} }
func ReferenceValue(name string) *Value { return &Value{ReferenceValue: &name} }
func GeoPointValue(lat, lng float64) *Value {
	return &Value{GeoPointValue: &LatLng{Latitude: lat, Longitude: lng}}
}

func BytesValue(b []byte) *Value {
	if b == nil {
		b = []byte{}
	}
	return &Value{BytesValue: b}
}

func ArrayOf(vs ...*Value) *Value { return &Value{ArrayValue: &ArrayValue{Values: vs}} }

func MapOf(fields map[string]*Value) *Value {
	return &Value{MapValue: &MapValue{Fields: fields}}
}

func (v *Value) Kind() Kind {
	switch {
	case v == nil:
		return KindInvalid
	case v.Null:
		return KindNull
	case v.BooleanValue != nil:
		return KindBoolean
	case v.IntegerValue != nil:
		return KindInteger
	case v.DoubleValue != nil:
		return KindDouble
	case v.TimestampValue != nil:
		return KindTimestamp
	case v.StringValue != nil:
		return KindString
	case v.BytesValue != nil:
		return KindBytes
	case v.ReferenceValue != nil:
		return KindReference
	case v.GeoPointValue != nil:
		return KindGeoPoint
	case v.ArrayValue != nil:
		return KindArray
	case v.MapValue != nil:
		return KindMap
	}
	return KindInvalid
}

// ValueOf converts a Go value. Supported: nil, bool, integers, floats,
// string, []byte, time.Time, LatLng, *Value, slices and string-keyed maps
// of supported values.
func ValueOf(x any) (*Value, error) {
	switch t := x.(type) {
	case nil:
		return NullValue(), nil
	case *Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntegerValue(int64(t)), nil
	case int32:
		return IntegerValue(int64(t)), nil
	case int64:
		return IntegerValue(t), nil
	case float32:
		return DoubleValue(float64(t)), nil
	case float64:
		return DoubleValue(t), nil
	case string:
		return StringValue(t), nil
	case []byte:
		return BytesValue(t), nil
	case time.Time:
		return TimestampValue(t), nil
	case LatLng:
		return GeoPointValue(t.Latitude, t.Longitude), nil
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		vals := make([]*Value, rv.Len())
		for i := range vals {
			v, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			vals[i] = v
		}
		return ArrayOf(vals...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		fields := make(map[string]*Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			v, err := ValueOf(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", iter.Key().String(), err)
			}
			fields[iter.Key().String()] = v
		}
		return MapOf(fields), nil
	case reflect.Pointer:
		if rv.IsNil() {
			return NullValue(), nil
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntegerValue(rv.Int()), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return IntegerValue(int64(rv.Uint())), nil
	}
	return nil, fmt.Errorf("unsupported type %T", x)
}

// Fields converts a map of Go values into document fields.
func Fields(m map[string]any) (map[string]*Value, error) {
	out := make(map[string]*Value, len(m))
	for k, x := range m {
		v, err := ValueOf(x)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Interface converts v back into a plain Go value. References come back
// as strings, geo points as LatLng.
func (v *Value) Interface() any {
	switch v.Kind() {
	case KindBoolean:
		return *v.BooleanValue
	case KindInteger:
		return *v.IntegerValue
	case KindDouble:
		return *v.DoubleValue
	case KindTimestamp:
		return *v.TimestampValue
	case KindString:
		return *v.StringValue
	case KindBytes:
		return v.BytesValue
	case KindReference:
		return *v.ReferenceValue
	case KindGeoPoint:
		return *v.GeoPointValue
	case KindArray:
		out := make([]any, len(v.ArrayValue.Values))
		for i, e := range v.ArrayValue.Values {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.MapValue.Fields))
		for k, e := range v.MapValue.Fields {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

type valueJSON struct {
	NullValue      *string         `json:"nullValue,omitempty"`
	BooleanValue   *bool           `json:"booleanValue,omitempty"`
	IntegerValue   *string         `json:"integerValue,omitempty"`
	DoubleValue    json.RawMessage `json:"doubleValue,omitempty"`
	TimestampValue *time.Time      `json:"timestampValue,omitempty"`
	StringValue    *string         `json:"stringValue,omitempty"`
	BytesValue     *string         `json:"bytesValue,omitempty"`
	ReferenceValue *string         `json:"referenceValue,omitempty"`
	GeoPointValue  *LatLng         `json:"geoPointValue,omitempty"`
	ArrayValue     *ArrayValue     `json:"arrayValue,omitempty"`
	MapValue       *MapValue       `json:"mapValue,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	var w valueJSON
	switch v.Kind() {
	case KindNull:
		s := "NULL_VALUE"
		w.NullValue = &s
	case KindBoolean:
		w.BooleanValue = v.BooleanValue
	case KindInteger:
		s := strconv.FormatInt(*v.IntegerValue, 10)
		w.IntegerValue = &s
	case KindDouble:
		w.DoubleValue = marshalDouble(*v.DoubleValue)
	case KindTimestamp:
		w.TimestampValue = v.TimestampValue
	case KindString:
		w.StringValue = v.StringValue
	case KindBytes:
		s := base64.StdEncoding.EncodeToString(v.BytesValue)
		w.BytesValue = &s
	case KindReference:
		w.ReferenceValue = v.ReferenceValue
	case KindGeoPoint:
		w.GeoPointValue = v.GeoPointValue
	case KindArray:
		w.ArrayValue = v.ArrayValue
	case KindMap:
		w.MapValue = v.MapValue
	default:
		return nil, fmt.Errorf("marshal value: no member set")
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var w valueJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*v = Value{}
	switch {
	case w.NullValue != nil:
		v.Null = true
	case w.BooleanValue != nil:
		v.BooleanValue = w.BooleanValue
	case w.IntegerValue != nil:
		i, err := strconv.ParseInt(*w.IntegerValue, 10, 64)
		if err != nil {
			return fmt.Errorf("integerValue: %w", err)
		}
		v.IntegerValue = &i
	case w.DoubleValue != nil:
		f, err := unmarshalDouble(w.DoubleValue)
		if err != nil {
			return fmt.Errorf("doubleValue: %w", err)
		}
		v.DoubleValue = &f
	case w.TimestampValue != nil:
		v.TimestampValue = w.TimestampValue
	case w.StringValue != nil:
		v.StringValue = w.StringValue
	case w.BytesValue != nil:
		raw, err := base64.StdEncoding.DecodeString(*w.BytesValue)
		if err != nil {
			if raw, err = base64.URLEncoding.DecodeString(*w.BytesValue); err != nil {
				return fmt.Errorf("bytesValue: %w", err)
			}
		}
		if raw == nil {
			raw = []byte{}
		}
		v.BytesValue = raw
	case w.ReferenceValue != nil:
		v.ReferenceValue = w.ReferenceValue
	case w.GeoPointValue != nil:
		v.GeoPointValue = w.GeoPointValue
	case w.ArrayValue != nil:
		v.ArrayValue = w.ArrayValue
	case w.MapValue != nil:
		v.MapValue = w.MapValue
	default:
		return fmt.Errorf("value has no member set: %s", b)
	}
	return nil
}

// Doubles use the proto3 JSON spellings for non-finite values.
func marshalDouble(f float64) json.RawMessage {
	switch {
	case math.IsNaN(f):
		return json.RawMessage(`"NaN"`)
	case math.IsInf(f, 1):
		return json.RawMessage(`"Infinity"`)
	case math.IsInf(f, -1):
		return json.RawMessage(`"-Infinity"`)
	}
	return json.RawMessage(strconv.FormatFloat(f, 'g', -1, 64))
}

func unmarshalDouble(raw json.RawMessage) (float64, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

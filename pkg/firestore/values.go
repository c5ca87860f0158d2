package firestore

import (
	"encoding/json"
	"math"
	"path"
	"strconv"
	"strings"
	"time"

	"liyu1981.xyz/water-quality-monitor/pkg/common"
	"liyu1981.xyz/water-quality-monitor/pkg/datalog"
)

// value is a Firestore REST typed value. Exactly one field is set.
type value struct {
	NullValue      *json.RawMessage `json:"nullValue,omitempty"`
	BooleanValue   *bool            `json:"booleanValue,omitempty"`
	IntegerValue   *string          `json:"integerValue,omitempty"`
	DoubleValue    *float64         `json:"doubleValue,omitempty"`
	StringValue    *string          `json:"stringValue,omitempty"`
	TimestampValue *string          `json:"timestampValue,omitempty"`
	MapValue       *mapValue        `json:"mapValue,omitempty"`
	ArrayValue     *arrayValue      `json:"arrayValue,omitempty"`
}

type mapValue struct {
	Fields map[string]value `json:"fields"`
}

type arrayValue struct {
	Values []value `json:"values"`
}

type document struct {
	Name       string           `json:"name,omitempty"`
	Fields     map[string]value `json:"fields"`
	CreateTime string           `json:"createTime,omitempty"`
	UpdateTime string           `json:"updateTime,omitempty"`
}

func (v value) number() (float64, bool) {
	switch {
	case v.DoubleValue != nil:
		return *v.DoubleValue, true
	case v.IntegerValue != nil:
		n, err := strconv.ParseInt(*v.IntegerValue, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
	return 0, false
}

// numeric is number plus numeric strings, for timestamp parts written as text.
func (v value) numeric() (float64, bool) {
	if n, ok := v.number(); ok {
		return n, true
	}
	if v.StringValue != nil {
		if n, err := strconv.ParseFloat(strings.TrimSpace(*v.StringValue), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func (v value) text() string {
	if v.StringValue != nil {
		return *v.StringValue
	}
	if v.IntegerValue != nil {
		return *v.IntegerValue
	}
	return ""
}

// readingValue only accepts numeric values; strings are not coerced.
func (v value) readingValue() *float64 {
	n, ok := v.number()
	if !ok {
		return nil
	}
	return &n
}

func (v value) timestamp() datalog.RawTimestamp {
	switch {
	case v.StringValue != nil:
		return datalog.StringTimestamp(*v.StringValue)
	case v.IntegerValue != nil, v.DoubleValue != nil:
		n, ok := v.number()
		if !ok {
			return nil
		}
		return datalog.MillisTimestamp(n)
	case v.TimestampValue != nil:
		t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
		if err != nil {
			return nil
		}
		return datalog.SecondsTimestamp{Seconds: t.Unix(), Nanos: int64(t.Nanosecond())}
	case v.MapValue != nil:
		seconds, ok := firstNumber(v.MapValue.Fields, "seconds", "_seconds")
		if !ok {
			return nil
		}
		nanos, _ := firstNumber(v.MapValue.Fields, "nanoseconds", "_nanoseconds", "nanos")
		return datalog.SecondsTimestamp{Seconds: int64(seconds), Nanos: int64(nanos)}
	}
	return nil
}

func firstNumber(fields map[string]value, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, found := fields[k]; found {
			if n, ok := f.numeric(); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func (d document) id() string {
	if d.Name == "" {
		return ""
	}
	return path.Base(d.Name)
}

func (d document) decode() datalog.Document {
	return datalog.Document{
		ID:        d.id(),
		SensorID:  d.Fields[common.FieldDatalogSensor].text(),
		Value:     d.Fields[fieldValue].readingValue(),
		Timestamp: d.Fields[fieldTimestamp].timestamp(),
	}
}

// encodeJSON converts a JSON value into its Firestore typed form. Integral
// numbers become integerValue, the rest doubleValue.
func encodeJSON(raw json.RawMessage) (value, bool) {
	if len(raw) == 0 {
		return value{}, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return value{}, false
	}
	return encodeAny(v), true
}

func encodeAny(v any) value {
	switch t := v.(type) {
	case nil:
		null := json.RawMessage("null")
		return value{NullValue: &null}
	case bool:
		return value{BooleanValue: &t}
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			s := strconv.FormatInt(int64(t), 10)
			return value{IntegerValue: &s}
		}
		return value{DoubleValue: &t}
	case string:
		return value{StringValue: &t}
	case map[string]any:
		fields := make(map[string]value, len(t))
		for k, item := range t {
			fields[k] = encodeAny(item)
		}
		return value{MapValue: &mapValue{Fields: fields}}
	case []any:
		return value{ArrayValue: &arrayValue{Values: common.Mapper(t, encodeAny)}}
	}
	return value{}
}

func stringValue(s string) value {
	return value{StringValue: &s}
}

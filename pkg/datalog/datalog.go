// Package datalog describes the sensor document collection the monitor reads
// and the decoding of its loosely typed fields.
package datalog

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrUnsupportedQuery = errors.New("datalog: unsupported query")

// Query is a single equality filter over one collection.
type Query struct {
	Collection string
	Field      string
	Value      string
}

// Document is a datalog entry decoded at the store boundary.
type Document struct {
	ID        string
	SensorID  string
	Value     *float64
	Timestamp RawTimestamp
}

// RawDocument is a document as written by a sensor, value and timestamp
// still in their wire encoding.
type RawDocument struct {
	SensorID  string          `json:"sensor_id"`
	Value     json.RawMessage `json:"value"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type Store interface {
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Writer is implemented by stores that accept new documents.
type Writer interface {
	Append(ctx context.Context, collection string, doc RawDocument) (string, error)
}

// Decode turns a raw document into its typed form.
func (r RawDocument) Decode(id string) Document {
	return Document{
		ID:        id,
		SensorID:  r.SensorID,
		Value:     DecodeValue(r.Value),
		Timestamp: DecodeTimestamp(r.Timestamp),
	}
}

// DecodeValue returns the reading value when raw is a JSON number, nil for
// anything else.
func DecodeValue(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

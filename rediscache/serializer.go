/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package rediscache

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	cachekit "github.com/acronis/go-cachekit"
)

// Serializer encodes cache values to the opaque byte form stored in Redis
// and decodes them back. An encoding must round-trip exactly for any value
// type callers use, including nested mappings.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// NewSerializer returns the serializer registered under the given name
// (see cachekit.SerializerMsgpack and cachekit.SerializerJSON).
// An empty name selects msgpack. An unsupported name is a configuration
// error and is reported immediately.
func NewSerializer(name string) (Serializer, error) {
	switch name {
	case "", cachekit.SerializerMsgpack:
		return msgpackSerializer{}, nil
	case cachekit.SerializerJSON:
		return jsonSerializer{}, nil
	}
	return nil, fmt.Errorf("unsupported serializer %q", name)
}

type msgpackSerializer struct{}

func (msgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// jsonSerializer trades compactness for a human-readable representation in
// the Redis keyspace. Note that JSON decodes all numbers as float64, and a
// whole-valued float is encoded without a fractional part, so it is
// indistinguishable from an integer in the stored form and comes back as
// int64. Use the msgpack serializer when the numeric type must survive the
// round trip.
type jsonSerializer struct{}

func (jsonSerializer) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonSerializer) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

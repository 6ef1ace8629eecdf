// Package jsonutil centralizes JSON encode/decode for the broker's hot
// path using json-iterator/go instead of encoding/json, since every
// broker get/set/publish round-trips a document.
package jsonutil

import jsoniter "github.com/json-iterator/go"

var api = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes v to its JSON representation.
func Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalString encodes v to a JSON string, for broker set/hset values.
func MarshalString(v interface{}) (string, error) {
	b, err := api.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}

// UnmarshalString decodes a JSON string into v.
func UnmarshalString(data string, v interface{}) error {
	return api.UnmarshalFromString(data, v)
}

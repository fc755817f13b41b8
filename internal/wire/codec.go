// Package wire implements the framed JSON stream codec used on every relay
// connection. Messages are concatenated JSON values separated by a fixed
// 5-byte ASCII delimiter; there is no length prefix.
package wire

import (
	"bytes"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

// Delimiter terminates every frame on the wire.
const Delimiter = "/*1^/"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode JSON-serializes v and appends the frame delimiter.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, Delimiter...), nil
}

// Unmarshal decodes a single fragment into v.
func Unmarshal(fragment []byte, v interface{}) error {
	return json.Unmarshal(fragment, v)
}

// Decoder splits an inbound byte stream into frame fragments.
//
// In reassembly mode (the default) a trailing partial fragment is carried
// over and completed by the next read, so the decoder is correct under
// arbitrary TCP segmentation. In compat mode each read is decoded in
// isolation: a fragment split across two reads is lost, which reproduces the
// historical single-read framing of the wire protocol.
type Decoder struct {
	compat bool
	carry  []byte
}

// NewDecoder returns a stream decoder. Pass compat=true to disable the
// carry buffer and decode each read in isolation.
func NewDecoder(compat bool) *Decoder {
	return &Decoder{compat: compat}
}

// Next consumes one read's worth of bytes and returns the complete frame
// fragments found so far. Empty fragments are discarded. The returned slices
// do not alias chunk.
func (d *Decoder) Next(chunk []byte) [][]byte {
	var data []byte
	if d.compat || len(d.carry) == 0 {
		data = append([]byte(nil), chunk...)
	} else {
		data = append(d.carry, chunk...)
		d.carry = nil
	}

	parts := bytes.Split(data, []byte(Delimiter))
	if !d.compat {
		// Whatever follows the last delimiter is a partial fragment (or
		// empty, when the chunk ended exactly on a delimiter). Hold it back.
		last := parts[len(parts)-1]
		if len(last) > 0 {
			d.carry = last
		}
		parts = parts[:len(parts)-1]
	}

	fragments := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		fragments = append(fragments, p)
	}
	return fragments
}

// DecodeMessages runs chunk through the decoder and hands every complete
// fragment to the decode callback. Malformed fragments are logged and
// skipped; they never terminate the stream.
func (d *Decoder) DecodeMessages(chunk []byte, decode func(fragment []byte) error) {
	for _, fragment := range d.Next(chunk) {
		if err := decode(fragment); err != nil {
			slog.Error("parse frame error", "frame", string(fragment), "error", err)
		}
	}
}

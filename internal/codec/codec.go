// Package codec provides the deterministic binary encoding used for
// coordination-store values and the published stream's wire messages.
// It is built on msgpack because msgpack gives struct-tag-driven field
// naming, a documented canonical map-key ordering, and cheap strict/lax
// decode modes — exactly the "stable binary encoding with field tags"
// the format calls for.
package codec

import (
	"bytes"
	"crypto/md5"

	"github.com/vmihailenco/msgpack/v5"

	"shoveld/internal/shovelerrors"
)

// Mode controls how Decode treats unrecognized fields.
type Mode int

const (
	// Strict rejects payloads carrying fields the target type does not
	// declare. Used for ClusterConfiguration: the distilled spec requires
	// unknown-tag strictness at the cluster root.
	Strict Mode = iota
	// Lax tolerates forward-compatible additions. Used for
	// ReplicationSetConfiguration.
	Lax
)

// Encode serializes v deterministically: Go map keys are emitted in
// sorted order and struct fields in declaration order, so that two equal
// values always produce byte-identical output — required for Version to
// be a pure function of configuration content.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, &shovelerrors.CodecError{Context: "encode", Cause: err}
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into v using the given strictness mode.
func Decode(data []byte, v any, mode Mode) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if mode == Strict {
		dec.DisallowUnknownFields(true)
	}
	if err := dec.Decode(v); err != nil {
		return &shovelerrors.CodecError{Context: "decode", Cause: err}
	}
	return nil
}

// Version returns the canonical fingerprint of an encodable configuration
// value: md5 of its deterministic encoded bytes. Two configurations that
// encode to equal bytes always produce the same fingerprint and vice
// versa, which is what makes it safe to pass to a trigger as an opaque
// "has my trigger fallen out of date" token.
func Version(v any) (string, error) {
	b, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(b)
	return hexEncode(sum[:]), nil
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

// EncodeStrings encodes a column/primary-key list the way the trigger
// manager feeds it to the audit trigger as a positional argument: the
// trigger body is the sole consumer and must reconstruct it exactly.
func EncodeStrings(ss []string) ([]byte, error) {
	return Encode(ss)
}

// DecodeStrings is the inverse of EncodeStrings.
func DecodeStrings(data []byte) ([]string, error) {
	var ss []string
	if err := Decode(data, &ss, Lax); err != nil {
		return nil, err
	}
	return ss, nil
}

// Package stormcodec provides storm codecs backed by github.com/ugorji/go/codec
// and a lookup by name used by the server configuration.
package stormcodec

import (
	"bytes"
	"fmt"

	"github.com/asdine/storm/v3/codec"
	"github.com/asdine/storm/v3/codec/json"
	"github.com/asdine/storm/v3/codec/msgpack"
	ugorji "github.com/ugorji/go/codec"
)

var (
	// CBOR encodes to and decodes from CBOR (Concise Binary Object Representation).
	// https://tools.ietf.org/html/rfc7049
	CBOR codec.MarshalUnmarshaler = &handleCodec{name: "cbor", handle: &ugorji.CborHandle{}}

	// Binc encodes to and decodes from Binc.
	// See https://github.com/ugorji/binc
	Binc codec.MarshalUnmarshaler = &handleCodec{name: "binc", handle: &ugorji.BincHandle{}}
)

type handleCodec struct {
	name   string
	handle ugorji.Handle
}

func (c *handleCodec) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	enc := ugorji.NewEncoder(&b, c.handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (c *handleCodec) Unmarshal(b []byte, v any) error {
	dec := ugorji.NewDecoderBytes(b, c.handle)
	return dec.Decode(v)
}

func (c *handleCodec) Name() string {
	return c.name
}

// Lookup returns the codec registered under name.
// An empty name selects msgpack.
func Lookup(name string) (codec.MarshalUnmarshaler, error) {
	switch name {
	case "", "msgpack":
		return msgpack.Codec, nil
	case "json":
		return json.Codec, nil
	case "cbor":
		return CBOR, nil
	case "binc":
		return Binc, nil
	}
	return nil, fmt.Errorf("unsupported storm codec: %s", name)
}

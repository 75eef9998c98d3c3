package service

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// valueCodec encodes values with CBOR, which keeps integers exact where JSON
// would turn them into float64.
type valueCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newValueCodec() (valueCodec, error) {
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return valueCodec{}, fmt.Errorf("value encoder: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		return valueCodec{}, fmt.Errorf("value decoder: %w", err)
	}
	return valueCodec{enc: enc, dec: dec}, nil
}

// fieldValue is the plaintext of an encrypted record field. Kind names the
// Go type of scalar values so that decryption restores it; composite values
// have no kind and decode into maps, slices and int64 numbers.
type fieldValue struct {
	Kind  string          `cbor:"k,omitempty"`
	Value cbor.RawMessage `cbor:"v"`
}

func (c valueCodec) marshalField(v any) ([]byte, error) {
	raw, err := c.enc.Marshal(v)
	if err != nil {
		return nil, err
	}
	return c.enc.Marshal(fieldValue{Kind: kindOf(v), Value: raw})
}

func (c valueCodec) unmarshalField(plaintext []byte) (any, error) {
	var fv fieldValue
	if err := c.dec.Unmarshal(plaintext, &fv); err != nil {
		return nil, err
	}
	switch fv.Kind {
	case "string":
		return decodeAs[string](c.dec, fv.Value)
	case "bool":
		return decodeAs[bool](c.dec, fv.Value)
	case "int":
		return decodeAs[int](c.dec, fv.Value)
	case "int8":
		return decodeAs[int8](c.dec, fv.Value)
	case "int16":
		return decodeAs[int16](c.dec, fv.Value)
	case "int32":
		return decodeAs[int32](c.dec, fv.Value)
	case "int64":
		return decodeAs[int64](c.dec, fv.Value)
	case "uint":
		return decodeAs[uint](c.dec, fv.Value)
	case "uint8":
		return decodeAs[uint8](c.dec, fv.Value)
	case "uint16":
		return decodeAs[uint16](c.dec, fv.Value)
	case "uint32":
		return decodeAs[uint32](c.dec, fv.Value)
	case "uint64":
		return decodeAs[uint64](c.dec, fv.Value)
	case "float32":
		return decodeAs[float32](c.dec, fv.Value)
	case "float64":
		return decodeAs[float64](c.dec, fv.Value)
	case "time":
		return decodeAs[time.Time](c.dec, fv.Value)
	case "":
		return decodeAs[any](c.dec, fv.Value)
	default:
		return nil, fmt.Errorf("unknown field kind %q", fv.Kind)
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case int:
		return "int"
	case int8:
		return "int8"
	case int16:
		return "int16"
	case int32:
		return "int32"
	case int64:
		return "int64"
	case uint:
		return "uint"
	case uint8:
		return "uint8"
	case uint16:
		return "uint16"
	case uint32:
		return "uint32"
	case uint64:
		return "uint64"
	case float32:
		return "float32"
	case float64:
		return "float64"
	case time.Time:
		return "time"
	}
	return ""
}

func decodeAs[T any](dec cbor.DecMode, raw []byte) (any, error) {
	var v T
	if err := dec.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

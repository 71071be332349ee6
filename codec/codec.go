// Package codec produces the canonical byte serialization of an action
// record and converts it back.
//
// The wire form is a CBOR map {"h": handler, "p": params} encoded with
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys,
// smallest integer encoding, no indefinite-length items. The same
// logical record always yields identical bytes, which is what makes
// content-addressed deduplication sound.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/acttoken/action"
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding. Initialization failure is a programming error.
var encMode cbor.EncMode

// decMode accepts standard CBOR and decodes map values into
// map[string]any so the dynamic parameter tree can be rebuilt.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Params hold int64; without this, small unsigned CBOR ints
		// decode to uint64 under an any-typed target and break
		// round-trip equality.
		IntDec: cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// envelope is the serialized shape. Single-letter keys keep small
// records inside the transport ceiling.
type envelope struct {
	Handler string         `cbor:"h"`
	Params  map[string]any `cbor:"p,omitempty"`
}

// Canonicalize serializes an action into its canonical bytes.
//
// Fails with ErrSerialization when the record is invalid or a
// parameter value cannot be represented.
func Canonicalize(a action.Action) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	env := envelope{Handler: a.Handler}
	if len(a.Params) > 0 {
		env.Params = make(map[string]any, len(a.Params))
		for k, v := range a.Params {
			env.Params[k] = v.ToGo()
		}
	}
	b, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return b, nil
}

// Decode rebuilds an action from canonical bytes.
//
// Fails with ErrMalformed when the bytes do not decode to a valid
// record shape.
func Decode(b []byte) (action.Action, error) {
	var env envelope
	if err := decMode.Unmarshal(b, &env); err != nil {
		return action.Action{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	a := action.Action{Handler: env.Handler}
	if len(env.Params) > 0 {
		params, err := action.ParamsFromGo(env.Params)
		if err != nil {
			return action.Action{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		a.Params = params
	}
	if err := action.CheckHandler(a.Handler); err != nil {
		return action.Action{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return a, nil
}

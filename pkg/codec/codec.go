// Package codec provides the self-describing binary codec used for all
// on-disk and wire encodings in this module: canonical encoding of the
// same value always yields the same bytes, and maps are encoded with
// sorted keys. Built on github.com/fxamacker/cbor/v2.
package codec

import "github.com/fxamacker/cbor/v2"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	encOpts := cbor.CanonicalEncOptions()
	mode, err := encOpts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = mode

	decOpts := cbor.DecOptions{}
	dmode, err := decOpts.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = dmode
}

// Marshal encodes v using the canonical encoding: deterministic field
// and map-key ordering, so that equal values always produce equal
// bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

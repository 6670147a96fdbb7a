package status

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Encoding names accepted in status.encoding.
const (
	EncodingJSON = "json"
	EncodingCBOR = "cbor"
)

// Encoder turns a report into a payload.
type Encoder func(Report) ([]byte, error)

// cborEncMode produces deterministic output so identical reports encode identically.
var cborEncMode cbor.EncMode

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	cborEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create status CBOR encoder mode: %v", err))
	}
}

// EncoderFor returns the encoder for a configured encoding name.
func EncoderFor(name string) (Encoder, error) {
	switch strings.ToLower(name) {
	case "", EncodingJSON:
		return func(r Report) ([]byte, error) { return json.Marshal(r) }, nil
	case EncodingCBOR:
		return func(r Report) ([]byte, error) { return cborEncMode.Marshal(r) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

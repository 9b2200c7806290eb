package v1alpha1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype the API is served under.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec marshals messages as JSON.
type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %T: %w", v, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string {
	return CodecName
}

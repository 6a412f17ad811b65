package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// Codec is the payload encoding used on the bridge channel. Every relay process
// sharing a channel must use the same codec.
type Codec interface {
	Name() string
	Marshal(event *types.Event) ([]byte, error)
	Unmarshal(data []byte, event *types.Event) error
}

// NewCodec returns the codec registered under name ("json" or "cbor")
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown bridge codec %q", name)
	}
}

// JSONCodec carries events in their wire form
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(event *types.Event) ([]byte, error) {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	return json.Marshal(event)
}

func (JSONCodec) Unmarshal(data []byte, event *types.Event) error {
	var json = jsoniter.ConfigCompatibleWithStandardLibrary
	return json.Unmarshal(data, event)
}

// CBORCodec carries events as CBOR maps keyed by the json field names
type CBORCodec struct{}

func (CBORCodec) Name() string { return "cbor" }

func (CBORCodec) Marshal(event *types.Event) ([]byte, error) {
	return cbor.Marshal(event)
}

func (CBORCodec) Unmarshal(data []byte, event *types.Event) error {
	if err := cbor.Unmarshal(data, event); err != nil {
		return err
	}
	if event.Tags == nil {
		event.Tags = types.Tags{}
	}
	return nil
}

package remote

import "encoding/json"

// jsonCodec is the wire codec used in place of generated protobuf
// marshaling (see messages.go). Registered under the "json" subtype so a
// ClientConn dialed with grpc.CallContentSubtype("json") negotiates
// application/grpc+json instead of application/grpc+proto.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}

// Package codec implements the TCP wire protocol: self-delimiting JSON
// Request and Response messages streamed back-to-back with no framing
// header, mirroring the original Rust implementation's
// serde_json::Deserializer streaming decoder.
package codec

import (
	"encoding/json"
	"io"

	"github.com/goerzh/kvs/pkg/kverrors"
)

// RequestOp identifies which of the three request shapes a message carries.
type RequestOp string

const (
	OpSet    RequestOp = "set"
	OpGet    RequestOp = "get"
	OpRemove RequestOp = "remove"
)

// Request is one client->server message: Set{key,value}, Get{key}, or
// Remove{key}.
type Request struct {
	Op    RequestOp `json:"op"`
	Key   string    `json:"key"`
	Value string    `json:"value,omitempty"`
}

// Response is one server->client message: either Ok(optional value) or
// Err(message).
type Response struct {
	Ok    bool    `json:"ok"`
	Value *string `json:"value,omitempty"`
	Err   string  `json:"err,omitempty"`
}

// OkEmpty builds the success response used for Set and Remove: Ok(None).
func OkEmpty() Response {
	return Response{Ok: true}
}

// OkValue builds the success response used for Get when a value is present.
func OkValue(value string) Response {
	return Response{Ok: true, Value: &value}
}

// OkAbsent builds the success response used for Get on an absent key:
// Ok(None), same wire shape as OkEmpty but kept distinct at the call site
// for readability.
func OkAbsent() Response {
	return Response{Ok: true}
}

// ErrResponse builds a failure response carrying a human-readable message.
func ErrResponse(message string) Response {
	return Response{Ok: false, Err: message}
}

// Encoder writes Requests or Responses to a stream with no framing header.
// json.Encoder follows each value with a newline, but the decoder on the
// other end relies solely on each JSON value's own closing delimiter to know
// where it ends.
type Encoder struct {
	enc *json.Encoder
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

func (e *Encoder) EncodeRequest(req Request) error {
	if err := e.enc.Encode(req); err != nil {
		return kverrors.NewCodec(err)
	}
	return nil
}

func (e *Encoder) EncodeResponse(resp Response) error {
	if err := e.enc.Encode(resp); err != nil {
		return kverrors.NewCodec(err)
	}
	return nil
}

// Decoder streams Requests or Responses from a connection, one value per
// Decode call, until EOF.
type Decoder struct {
	dec *json.Decoder
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// DecodeRequest reads the next Request, or io.EOF when the peer has closed
// the stream cleanly between messages.
func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request
	if err := d.dec.Decode(&req); err != nil {
		if err == io.EOF {
			return Request{}, io.EOF
		}
		return Request{}, kverrors.NewCodec(err)
	}
	return req, nil
}

// DecodeResponse reads the next Response.
func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response
	if err := d.dec.Decode(&resp); err != nil {
		if err == io.EOF {
			return Response{}, io.EOF
		}
		return Response{}, kverrors.NewCodec(err)
	}
	return resp, nil
}

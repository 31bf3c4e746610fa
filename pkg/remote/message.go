package remote

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/google/uuid"
)

// ErrMalformed indicates a packet that isn't a valid request or reply.
var ErrMalformed = errors.New("malformed packet")

// Request invokes a device method.
type Request struct {
	ID     string
	Device string
	Method string
	Args   []string
}

// NewRequest creates a Request with a new ID.
func NewRequest(device, method string, args ...string) *Request {
	return &Request{ID: uuid.New().String(), Device: device, Method: method, Args: args}
}

// Reply is the outcome of a Request, Error is empty on success.
type Reply struct {
	ID     string
	Result string
	Error  string
}

// RemoteError is a failure reported by the server.
type RemoteError struct {
	Device  string
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Device, e.Method, e.Message)
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

// Encode serializes the request.
func (r *Request) Encode() ([]byte, error) {
	args := make([]*structpb.Value, len(r.Args))
	for n, arg := range r.Args {
		args[n] = stringValue(arg)
	}
	return proto.Marshal(&structpb.Struct{Fields: map[string]*structpb.Value{
		"id":     stringValue(r.ID),
		"device": stringValue(r.Device),
		"method": stringValue(r.Method),
		"args":   {Kind: &structpb.Value_ListValue{ListValue: &structpb.ListValue{Values: args}}},
	}})
}

// Encode serializes the reply.
func (r *Reply) Encode() ([]byte, error) {
	fields := map[string]*structpb.Value{
		"id":     stringValue(r.ID),
		"result": stringValue(r.Result),
	}
	if r.Error != "" {
		fields["error"] = stringValue(r.Error)
	}
	return proto.Marshal(&structpb.Struct{Fields: fields})
}

type fields map[string]*structpb.Value

func decodeFields(pkt []byte) (fields, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(pkt, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s.Fields, nil
}

func (f fields) str(name string, required bool) (string, error) {
	v, ok := f[name]
	if !ok {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrMalformed, name)
		}
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", fmt.Errorf("%w: %s is not a string", ErrMalformed, name)
	}
	return sv.StringValue, nil
}

// DecodeRequest parses a request. The returned request carries the ID even
// when the rest is malformed, so the sender can be told.
func DecodeRequest(pkt []byte) (*Request, error) {
	f, err := decodeFields(pkt)
	if err != nil {
		return nil, err
	}
	req := &Request{}
	if req.ID, err = f.str("id", true); err != nil || req.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if req.Device, err = f.str("device", true); err != nil {
		return req, err
	}
	if req.Method, err = f.str("method", true); err != nil {
		return req, err
	}
	if v, ok := f["args"]; ok {
		list := v.GetListValue()
		if list == nil {
			return req, fmt.Errorf("%w: args is not a list", ErrMalformed)
		}
		for _, arg := range list.Values {
			sv, ok := arg.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return req, fmt.Errorf("%w: argument is not a string", ErrMalformed)
			}
			req.Args = append(req.Args, sv.StringValue)
		}
	}
	return req, nil
}

// DecodeReply parses a reply.
func DecodeReply(pkt []byte) (*Reply, error) {
	f, err := decodeFields(pkt)
	if err != nil {
		return nil, err
	}
	rep := &Reply{}
	if rep.ID, err = f.str("id", true); err != nil {
		return nil, err
	}
	if rep.Result, err = f.str("result", false); err != nil {
		return nil, err
	}
	if rep.Error, err = f.str("error", false); err != nil {
		return nil, err
	}
	return rep, nil
}

package remote

import (
	"errors"
	"testing"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestEncoding(t *testing.T) {
	req := NewRequest("pan", "rotate", "90")
	assert.Len(t, req.ID, 36)
	assert.NotEqual(t, req.ID, NewRequest("pan", "rotate").ID)
	pkt, err := req.Encode()
	require.NoError(t, err)
	decoded, err := DecodeRequest(pkt)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}

func TestReplyEncoding(t *testing.T) {
	pkt, err := (&Reply{ID: "1", Result: "21.5 40"}).Encode()
	require.NoError(t, err)
	rep, err := DecodeReply(pkt)
	require.NoError(t, err)
	assert.Equal(t, &Reply{ID: "1", Result: "21.5 40"}, rep)

	pkt, err = (&Reply{ID: "2", Error: "timeout"}).Encode()
	require.NoError(t, err)
	rep, err = DecodeReply(pkt)
	require.NoError(t, err)
	assert.Equal(t, "timeout", rep.Error)
}

func encodeFields(t *testing.T, fields map[string]*structpb.Value) []byte {
	pkt, err := proto.Marshal(&structpb.Struct{Fields: fields})
	require.NoError(t, err)
	return pkt
}

func TestDecodeMalformedRequest(t *testing.T) {
	_, err := DecodeRequest([]byte{0xff, 0xff, 0xff})
	require.True(t, errors.Is(err, ErrMalformed))

	req, err := DecodeRequest(encodeFields(t, map[string]*structpb.Value{
		"device": stringValue("led"),
	}))
	require.True(t, errors.Is(err, ErrMalformed))
	assert.Nil(t, req, "no id to reply to")

	req, err = DecodeRequest(encodeFields(t, map[string]*structpb.Value{
		"id":     stringValue("abc"),
		"device": stringValue("led"),
	}))
	require.True(t, errors.Is(err, ErrMalformed))
	require.NotNil(t, req)
	assert.Equal(t, "abc", req.ID)

	_, err = DecodeRequest(encodeFields(t, map[string]*structpb.Value{
		"id":     stringValue("abc"),
		"device": stringValue("led"),
		"method": stringValue("turn_on"),
		"args":   stringValue("now"),
	}))
	require.True(t, errors.Is(err, ErrMalformed))

	_, err = DecodeReply(encodeFields(t, map[string]*structpb.Value{
		"result": stringValue("ok"),
	}))
	require.True(t, errors.Is(err, ErrMalformed))
}

package link

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

func TestPayloadRoundTrip(t *testing.T) {
	cfg := firmware.DefaultConfig()
	for _, payload := range []string{"", "90", "hello world", "  leading", "a b  c ", "x|y"} {
		encoded, err := EncodePayload(cfg, payload)
		require.NoError(t, err, payload)
		require.NotContains(t, encoded, " ")
		require.Equal(t, payload, DecodePayload(cfg, encoded))
	}
}

func TestPayloadUnencodable(t *testing.T) {
	cfg := firmware.DefaultConfig()
	for _, payload := range []string{"a||b", "line\n", "crlf\r\n", "a| b"} {
		_, err := EncodePayload(cfg, payload)
		require.True(t, errors.Is(err, ErrUnencodablePayload), "payload %q: %v", payload, err)
	}
}

func TestPayloadCustomToken(t *testing.T) {
	cfg := firmware.Config{BaudRate: 9600, CmdTerminator: ";", DataTerminator: "#", WhitespaceSub: "_"}
	encoded, err := EncodePayload(cfg, "set 1 2")
	require.NoError(t, err)
	require.Equal(t, "set_1_2", encoded)
	_, err = EncodePayload(cfg, "a;b")
	require.Error(t, err)
}

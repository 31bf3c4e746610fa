package link

import (
	"fmt"
	"strings"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// EncodePayload replaces spaces with the substitution token so the payload
// fits in a single data frame.
func EncodePayload(cfg firmware.Config, payload string) (string, error) {
	for _, token := range []string{cfg.CmdTerminator, cfg.DataTerminator} {
		if strings.Contains(payload, token) {
			return "", fmt.Errorf("%w: %q contains terminator %q", ErrUnencodablePayload, payload, token)
		}
	}
	encoded := strings.Replace(payload, " ", cfg.WhitespaceSub, -1)
	if DecodePayload(cfg, encoded) != payload {
		return "", fmt.Errorf("%w: %q is ambiguous with token %q", ErrUnencodablePayload, payload, cfg.WhitespaceSub)
	}
	return encoded, nil
}

// DecodePayload reverses EncodePayload, it's what the board does with a data
// frame.
func DecodePayload(cfg firmware.Config, frame string) string {
	return strings.Replace(frame, cfg.WhitespaceSub, " ", -1)
}

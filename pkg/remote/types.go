// Package remote exposes the devices of a board to other processes.
//
// Requests and replies are protobuf Struct messages carried as packets by a
// PacketReadWriter, which is backed by MQTT, websocket or a plain stream.
package remote

import "context"

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// Target runs device methods.
type Target interface {
	Invoke(ctx context.Context, device, method string, args ...string) (string, error)
}

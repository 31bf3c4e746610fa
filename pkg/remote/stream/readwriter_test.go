package stream

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackets(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	w, r := New(a), New(b)
	go func() {
		w.WritePacket([]byte("hello"))
		w.WritePacket(nil)
	}()
	pkt, err := r.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pkt))
	pkt, err = r.ReadPacket()
	require.NoError(t, err)
	assert.Empty(t, pkt)
}

func TestOversizedPacket(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(MaxPacketSize+1))
	_, err := New(&buf).ReadPacket()
	require.Error(t, err)
	assert.NoError(t, New(&buf).Close())
}

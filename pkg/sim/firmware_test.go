package sim

import (
	"bufio"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

func TestFirmwareFrames(t *testing.T) {
	fw := New(firmware.DefaultConfig())
	fw.Handle(2, func(c *Call) error {
		data, err := c.ReceiveData()
		if err != nil {
			return err
		}
		return c.SendResponse("echo " + data)
	})
	port := fw.Connect()
	defer fw.Wait()
	defer port.Close()
	r := bufio.NewReader(port)

	// not a command, dropped without an ack
	_, err := io.WriteString(port, "hello\n")
	require.NoError(t, err)
	_, err = io.WriteString(port, "2\n")
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ok\n", line)

	_, err = io.WriteString(port, "a||b\r\n")
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "ok\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "echo a b\r\n", line)

	assert.Equal(t, []int{2}, fw.Acked())
}

func TestParseCommand(t *testing.T) {
	for frame, expected := range map[string]bool{
		"0": true, "17": true, "": false, "-1": false, "1a": false, " 1": false,
	} {
		_, ok := parseCommand(frame)
		assert.Equal(t, expected, ok, frame)
	}
}

func TestFirmwareClose(t *testing.T) {
	fw := New(firmware.DefaultConfig())
	port := fw.Connect()
	require.NoError(t, fw.Close())
	fw.Wait()
	_, err := port.Write([]byte("0\n"))
	require.Error(t, err)
	assert.Equal(t, firmware.IdleCommand, fw.Latch())
}

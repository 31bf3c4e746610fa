package link_test

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/link"
	"github.com/robotalks/ardubridge/pkg/sim"
)

type pipePort struct {
	net.Conn
	flushed int
}

func (p *pipePort) Flush() error {
	p.flushed++
	return nil
}

// board returns a session and the device end of its line.
func board(t *testing.T, opts ...link.Option) (*link.Session, *bufio.Reader, net.Conn) {
	host, dev := net.Pipe()
	s := link.NewSession(&pipePort{Conn: host}, firmware.DefaultConfig(), opts...)
	t.Cleanup(func() {
		s.Close()
		dev.Close()
	})
	return s, bufio.NewReader(dev), dev
}

func TestCommandFrame(t *testing.T) {
	s, r, dev := board(t)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Command(context.Background(), 0) }()

	frame, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "0\n", frame)
	_, err = io.WriteString(dev, "ok\n")
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Equal(t, link.StateCommandPending, s.State())
}

func TestNegativeCommandIsNotSent(t *testing.T) {
	s, _, _ := board(t, link.WithTimeout(time.Hour))
	ctx := context.Background()
	err := s.Command(ctx, firmware.IdleCommand)
	require.True(t, errors.Is(err, link.ErrInvalidCommand), "got %v", err)
	_, err = s.Exchange(ctx, link.Request{Command: -7, Reply: true})
	require.True(t, errors.Is(err, link.ErrInvalidCommand), "got %v", err)
	assert.Equal(t, link.StateIdle, s.State())
}

func TestCommandDesync(t *testing.T) {
	s, r, dev := board(t)
	go func() {
		r.ReadString('\n')
		io.WriteString(dev, "25.0\n")
	}()
	err := s.Command(context.Background(), 3)
	var desync *link.DesyncError
	require.True(t, errors.As(err, &desync), "got %v", err)
	assert.Equal(t, "ok\n", desync.Expected)
	assert.Equal(t, "25.0\n", desync.Got)
	assert.Equal(t, link.StateIdle, s.State())
}

func TestCommandTimeout(t *testing.T) {
	s, r, dev := board(t, link.WithTimeout(50*time.Millisecond))
	go func() {
		r.ReadString('\n')
		io.WriteString(dev, "o")
	}()
	err := s.Command(context.Background(), 1)
	var timeout *link.TimeoutError
	require.True(t, errors.As(err, &timeout), "got %v", err)
	assert.True(t, timeout.Timeout())
}

func TestCommandCanceled(t *testing.T) {
	s, r, _ := board(t)
	go r.ReadString('\n')
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, s.Command(ctx, 1))
}

func TestResyncDrainsGarbage(t *testing.T) {
	s, r, dev := board(t)
	go func() {
		io.WriteString(dev, "garbage\r\nok")
		frame, _ := r.ReadString('\n')
		if frame == "2\n" {
			io.WriteString(dev, "ok\n")
		}
	}()
	require.NoError(t, s.Resync(context.Background(), 50*time.Millisecond))
	require.NoError(t, s.Command(context.Background(), 2))
}

func TestCloseIsIdempotent(t *testing.T) {
	s, _, _ := board(t)
	require.NoError(t, s.Close())
	s.Close()
	require.Equal(t, link.ErrClosed, s.Command(context.Background(), 0))
	_, err := s.ReadResponse(context.Background())
	require.Equal(t, link.ErrClosed, err)
}

type brokenPort struct {
	err error
}

func (p *brokenPort) Read([]byte) (int, error)    { return 0, p.err }
func (p *brokenPort) Write(b []byte) (int, error) { return len(b), nil }
func (p *brokenPort) Close() error                { return nil }
func (p *brokenPort) Flush() error                { return nil }

func TestReaderFailure(t *testing.T) {
	unplugged := errors.New("unplugged")
	s := link.NewSession(&brokenPort{err: unplugged}, firmware.DefaultConfig())
	defer s.Close()
	require.Equal(t, unplugged, s.Command(context.Background(), 0))
}

func TestUnencodableDataIsNotSent(t *testing.T) {
	s, _, _ := board(t)
	err := s.SendData(context.Background(), "a||b")
	require.True(t, errors.Is(err, link.ErrUnencodablePayload))
}

func simBoard(t *testing.T) (*sim.Firmware, *link.Session) {
	fw := sim.New(firmware.DefaultConfig())
	s := link.NewSession(fw.Connect(), firmware.DefaultConfig(), link.WithTimeout(time.Second))
	t.Cleanup(func() {
		s.Close()
		fw.Wait()
	})
	return fw, s
}

func TestExchangeWithFirmware(t *testing.T) {
	fw, s := simBoard(t)
	received := make(chan string, 1)
	fw.Handle(0, func(c *sim.Call) error {
		return c.SendResponse("25.50 61.00")
	})
	fw.Handle(1, func(c *sim.Call) error {
		data, err := c.ReceiveData()
		received <- data
		return err
	})

	ctx := context.Background()
	resp, err := s.Exchange(ctx, link.Request{Command: 0, Reply: true})
	require.NoError(t, err)
	assert.Equal(t, "25.50 61.00", resp)
	assert.Equal(t, link.StateIdle, s.State())

	_, err = s.Exchange(ctx, link.Request{Command: 1, Data: "turn to 90", HasData: true})
	require.NoError(t, err)
	assert.Equal(t, "turn to 90", <-received)
	assert.Equal(t, []int{0, 1}, fw.Dispatched())
}

func TestRepeatedCommandIsIdempotent(t *testing.T) {
	fw, s := simBoard(t)
	fw.Handle(4, func(c *sim.Call) error {
		return c.SendResponse("1")
	})
	ctx := context.Background()
	var responses []string
	for i := 0; i < 2; i++ {
		resp, err := s.Exchange(ctx, link.Request{Command: 4, Reply: true})
		require.NoError(t, err)
		responses = append(responses, resp)
	}
	assert.Equal(t, []string{"1", "1"}, responses)
	assert.Equal(t, []int{4, 4}, fw.Acked())
	assert.Equal(t, []int{4, 4}, fw.Dispatched())
}

func TestUnknownCommandStaysLatched(t *testing.T) {
	fw, s := simBoard(t)
	fw.Handle(0, func(c *sim.Call) error { return nil })
	ctx := context.Background()

	require.NoError(t, s.Command(ctx, 9))
	assert.Equal(t, 9, fw.Latch())
	assert.Empty(t, fw.Dispatched())

	_, err := s.Exchange(ctx, link.Request{Command: 0})
	require.NoError(t, err)
	assert.Equal(t, []int{9, 0}, fw.Acked())
	assert.Equal(t, []int{0}, fw.Dispatched())
}

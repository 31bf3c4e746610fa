package endpoint

import (
	"context"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTarget struct{}

func (echoTarget) Invoke(ctx context.Context, device, method string, args ...string) (string, error) {
	return device + "." + method + "(" + strings.Join(args, ",") + ")", nil
}

func TestConfig(t *testing.T) {
	c := NewConfig()
	c.BoardID = "rover"
	assert.Equal(t, "rover", c.Board())
	c.BoardID = ""
	assert.NotEmpty(t, c.Board())

	c.URL = "amqp://localhost/"
	_, err := c.Dial(context.Background())
	require.Error(t, err)
	c.URL = "::bad"
	require.Error(t, c.Serve(context.Background(), nil))
}

func TestWebsocket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(Handler(ctx, echoTarget{}))
	defer srv.Close()

	c := NewConfig()
	c.URL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	client, err := c.Dial(ctx)
	require.NoError(t, err)
	callCtx, callCancel := context.WithTimeout(ctx, time.Second)
	defer callCancel()
	out, err := client.Call(callCtx, "pan", "rotate", "90")
	require.NoError(t, err)
	assert.Equal(t, "pan.rotate(90)", out)
}

func TestStream(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- ServeListener(ctx, ln, echoTarget{}) }()

	c := NewConfig()
	c.URL = "tcp://" + ln.Addr().String()
	client, err := c.Dial(ctx)
	require.NoError(t, err)
	callCtx, callCancel := context.WithTimeout(ctx, time.Second)
	defer callCancel()
	out, err := client.Call(callCtx, "led", "turn_on")
	require.NoError(t, err)
	assert.Equal(t, "led.turn_on()", out)
	out, err = client.Call(callCtx, "dht", "get_data")
	require.NoError(t, err)
	assert.Equal(t, "dht.get_data()", out)

	cancel()
	assert.Equal(t, context.Canceled, <-served)
}

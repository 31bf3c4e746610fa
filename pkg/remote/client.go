package remote

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/ardubridge/pkg/framework"
)

// ErrClientClosed indicates the client stopped reading replies.
var ErrClientClosed = errors.New("remote client closed")

// Client sends requests and matches replies by ID. Run must be running for
// Call to return.
type Client struct {
	ReadWriter PacketReadWriter

	lock     sync.Mutex
	pending  map[string]chan *Reply
	sendLock sync.Mutex
	done     chan struct{}
	doneOnce sync.Once
}

// NewClient creates a Client.
func NewClient(rw PacketReadWriter) *Client {
	return &Client{
		ReadWriter: rw,
		pending:    make(map[string]chan *Reply),
		done:       make(chan struct{}),
	}
}

// Run implements Runnable.
func (c *Client) Run(ctx context.Context) error {
	defer c.doneOnce.Do(func() { close(c.done) })
	return fx.RunWithContextCloser(ctx, c, c.receive)
}

func (c *Client) receive() error {
	for {
		pkt, err := c.ReadWriter.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		rep, err := DecodeReply(pkt)
		if err != nil {
			glog.Warningf("Dropped reply: %v", err)
			continue
		}
		c.lock.Lock()
		ch := c.pending[rep.ID]
		delete(c.pending, rep.ID)
		c.lock.Unlock()
		if ch == nil {
			glog.V(2).Infof("Reply %s not expected", rep.ID)
			continue
		}
		ch <- rep
	}
}

// Call invokes a method of a remote device.
func (c *Client) Call(ctx context.Context, device, method string, args ...string) (string, error) {
	req := NewRequest(device, method, args...)
	pkt, err := req.Encode()
	if err != nil {
		return "", err
	}
	ch := make(chan *Reply, 1)
	c.lock.Lock()
	c.pending[req.ID] = ch
	c.lock.Unlock()
	defer func() {
		c.lock.Lock()
		delete(c.pending, req.ID)
		c.lock.Unlock()
	}()

	c.sendLock.Lock()
	err = c.ReadWriter.WritePacket(pkt)
	c.sendLock.Unlock()
	if err != nil {
		return "", err
	}

	select {
	case rep := <-ch:
		if rep.Error != "" {
			return "", &RemoteError{Device: device, Method: method, Message: rep.Error}
		}
		return rep.Result, nil
	case <-c.done:
		return "", ErrClientClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invoke implements Target with Call.
func (c *Client) Invoke(ctx context.Context, device, method string, args ...string) (string, error) {
	return c.Call(ctx, device, method, args...)
}

// Close implements io.Closer.
func (c *Client) Close() error {
	if closer, ok := c.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

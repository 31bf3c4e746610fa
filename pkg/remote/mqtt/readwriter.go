package mqtt

import (
	"io"
	"sync"
)

// Topic suffixes under a board.
const (
	TopicCmd   = "/cmd"
	TopicMsg   = "/msg"
	TopicMeta  = "/meta"
	TopicState = "/state"
)

// ReadWriter implements PacketReadWriter over a pair of topics.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	sub       *Subscription
	subLock   sync.Mutex
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForServer reads requests for board and writes replies.
func (p *ReadWriter) ForServer(board string) *ReadWriter {
	return p.WithTopics(board+TopicCmd, board+TopicMsg)
}

// ForClient writes requests to board and reads its replies.
func (p *ReadWriter) ForClient(board string) *ReadWriter {
	return p.WithTopics(board+TopicMsg, board+TopicCmd)
}

// Subscribe starts receiving packets on SubTopic.
func (p *ReadWriter) Subscribe() error {
	p.subLock.Lock()
	defer p.subLock.Unlock()
	if p.sub != nil {
		return nil
	}
	p.sub = p.Queue.Sub(p.SubTopic, p.handleMsg)
	p.sub.Token.Wait()
	return p.sub.Token.Error()
}

// ReadPacket implements PacketReader. It returns io.EOF once closed.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close unsubscribes and makes ReadPacket return io.EOF.
func (p *ReadWriter) Close() (err error) {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.subLock.Lock()
		if p.sub != nil {
			err = p.sub.Close()
		}
		p.subLock.Unlock()
	})
	return
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.closed:
	}
}

package mqtt

import (
	"context"
)

// Announcer keeps a retained description of a board on its meta topic while
// running. The broker clears it through the will if the connection drops.
type Announcer struct {
	Queue *Queue
	Board string
	Meta  []byte
}

// NewAnnouncer creates a Queue for brokerURL whose will clears the meta
// topic of board.
func NewAnnouncer(brokerURL, board string, meta []byte) (*Announcer, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+board+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("ardu:" + board)
	}
	a := &Announcer{Queue: NewQueue(opts, topicPrefix), Board: board, Meta: meta}
	a.Queue.OnConnect = func(*Queue) { a.announce() }
	return a, nil
}

func (a *Announcer) announce() {
	a.Queue.PubWith(a.Board+TopicMeta, a.Meta, 1, true)
}

// PublishState publishes a retained state payload.
func (a *Announcer) PublishState(payload []byte) error {
	token := a.Queue.PubWith(a.Board+TopicState, payload, 0, true)
	token.Wait()
	return token.Error()
}

// Run implements Runnable. The queue must be connected already.
func (a *Announcer) Run(ctx context.Context) error {
	<-ctx.Done()
	token := a.Queue.PubWith(a.Board+TopicMeta, nil, 1, true)
	token.Wait()
	a.Queue.Close()
	return nil
}

package link

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// DefaultTimeout bounds every blocking read of a session.
const DefaultTimeout = 2 * time.Second

const ack = "ok"

// State is the host's view of the board's command latch.
type State int

// States.
const (
	StateIdle State = iota
	StateCommandPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCommandPending:
		return "command-pending"
	}
	return "unknown"
}

// Request is a single exchange.
type Request struct {
	Command int
	// Data is sent as a data frame when HasData is set.
	Data    string
	HasData bool
	// Reply requests a response frame to be read.
	Reply bool
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.timeout = d
	}
}

// WithExpectedStamp records the stamp of the program the board is expected to
// run.
func WithExpectedStamp(stamp string) Option {
	return func(s *Session) {
		s.stamp = stamp
	}
}

// Session talks to a board running a rendered sketch.
type Session struct {
	port    Port
	cfg     firmware.Config
	timeout time.Duration
	stamp   string

	// lock serializes exchanges and guards buf.
	lock sync.Mutex
	buf  []byte

	state     State
	stateLock sync.RWMutex

	dataCh    chan []byte
	failCh    chan struct{}
	failErr   error
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps port and starts the background reader. The session owns
// the port from now on.
func NewSession(port Port, cfg firmware.Config, opts ...Option) *Session {
	s := &Session{
		port:    port,
		cfg:     cfg.WithDefaults(),
		timeout: DefaultTimeout,
		dataCh:  make(chan []byte, 64),
		failCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

// Config returns the session config.
func (s *Session) Config() firmware.Config {
	return s.cfg
}

// ExpectedStamp returns the stamp given by WithExpectedStamp.
func (s *Session) ExpectedStamp() string {
	return s.stamp
}

// State gets the latch state.
func (s *Session) State() State {
	s.stateLock.RLock()
	defer s.stateLock.RUnlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.stateLock.Lock()
	s.state = state
	s.stateLock.Unlock()
}

// Command sends a command frame and waits for the acknowledgment. The board
// latches the identifier, replacing any pending one.
func (s *Session) Command(ctx context.Context, id int) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.command(ctx, id)
}

// SendData sends a data frame and waits for the acknowledgment.
func (s *Session) SendData(ctx context.Context, payload string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.sendData(ctx, payload)
}

// ReadResponse reads a response frame.
func (s *Session) ReadResponse(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.readFrame(ctx, "response", s.cfg.DataTerminator)
}

// Exchange runs a full round trip. No other exchange interleaves with it.
func (s *Session) Exchange(ctx context.Context, req Request) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	defer s.setState(StateIdle)
	if err := s.command(ctx, req.Command); err != nil {
		return "", err
	}
	if req.HasData {
		if err := s.sendData(ctx, req.Data); err != nil {
			return "", err
		}
	}
	if !req.Reply {
		return "", nil
	}
	return s.readFrame(ctx, "response", s.cfg.DataTerminator)
}

// Resync drops everything received so far and keeps discarding until the
// line has been quiet for quiet.
func (s *Session) Resync(ctx context.Context, quiet time.Duration) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.port.Flush(); err != nil {
		return err
	}
	dropped := len(s.buf)
	s.buf = nil
	timer := time.NewTimer(quiet)
	defer timer.Stop()
	for {
		select {
		case chunk := <-s.dataCh:
			dropped += len(chunk)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
		case <-timer.C:
			glog.V(2).Infof("[SERIAL][RESYNC] dropped %d bytes", dropped)
			s.setState(StateIdle)
			return nil
		case <-s.done:
			return s.closedErr()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the reader and closes the port. It's safe to call more than
// once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

func (s *Session) command(ctx context.Context, id int) error {
	if id < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCommand, id)
	}
	if err := s.write(strconv.Itoa(id) + s.cfg.CmdTerminator); err != nil {
		return err
	}
	if err := s.expectAck(ctx, "command "+strconv.Itoa(id), s.cfg.CmdTerminator); err != nil {
		return err
	}
	s.setState(StateCommandPending)
	return nil
}

func (s *Session) sendData(ctx context.Context, payload string) error {
	encoded, err := EncodePayload(s.cfg, payload)
	if err != nil {
		return err
	}
	if err := s.write(encoded + s.cfg.DataTerminator); err != nil {
		return err
	}
	return s.expectAck(ctx, "data", s.cfg.DataTerminator)
}

func (s *Session) expectAck(ctx context.Context, op, term string) error {
	frame, err := s.readFrame(ctx, op, term)
	if err != nil {
		return err
	}
	if frame != ack {
		return &DesyncError{Op: op, Expected: ack + term, Got: frame + term}
	}
	return nil
}

func (s *Session) write(frame string) error {
	select {
	case <-s.done:
		return s.closedErr()
	default:
	}
	glog.V(2).Infof("[SERIAL][WRITE] %q", frame)
	_, err := s.port.Write([]byte(frame))
	return err
}

// readFrame returns the bytes before the next term and consumes them with the
// terminator.
func (s *Session) readFrame(ctx context.Context, op, term string) (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for {
		if n := bytes.Index(s.buf, []byte(term)); n >= 0 {
			frame := string(s.buf[:n])
			s.buf = s.buf[n+len(term):]
			glog.V(2).Infof("[SERIAL][READ] %q", frame+term)
			return frame, nil
		}
		select {
		case chunk := <-s.dataCh:
			s.buf = append(s.buf, chunk...)
		case <-timer.C:
			return "", &TimeoutError{Op: op, After: s.timeout, Partial: string(s.buf)}
		case <-s.done:
			return "", s.closedErr()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (s *Session) closedErr() error {
	select {
	case <-s.failCh:
		return s.failErr
	default:
		return ErrClosed
	}
}

func (s *Session) readLoop() {
	buf := make([]byte, 64)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		n, err := s.port.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case s.dataCh <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case <-s.done:
			default:
				glog.Errorf("serial read failed: %v", err)
				s.failErr = err
				close(s.failCh)
				s.Close()
			}
			return
		}
	}
}

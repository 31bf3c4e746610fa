// Package sim emulates a board running a rendered sketch.
package sim

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/link"
)

// Handler implements a device method.
type Handler func(*Call) error

// Firmware behaves like the sketch produced by the renderer: it acks command
// frames, latches the identifier and runs the matching handler.
type Firmware struct {
	cfg      firmware.Config
	handlers map[int]Handler

	latch      int
	acked      []int
	dispatched []int
	lock       sync.Mutex
	// busy is held from the ack of a command until its handler returns.
	busy sync.Mutex

	conn net.Conn
	done chan struct{}
}

// New creates a Firmware.
func New(cfg firmware.Config) *Firmware {
	return &Firmware{
		cfg:      cfg.WithDefaults(),
		handlers: make(map[int]Handler),
		latch:    firmware.IdleCommand,
	}
}

// Handle installs the handler for a command identifier.
func (f *Firmware) Handle(id int, h Handler) {
	f.lock.Lock()
	f.handlers[id] = h
	f.lock.Unlock()
}

// Connect powers the board on and returns the host end of its serial line.
// The board stops when the host end is closed.
func (f *Firmware) Connect() link.Port {
	host, dev := net.Pipe()
	f.lock.Lock()
	f.conn = dev
	f.done = make(chan struct{})
	f.latch = firmware.IdleCommand
	done := f.done
	f.lock.Unlock()
	go func() {
		defer close(done)
		if err := f.serve(dev); err != nil && err != io.EOF && err != io.ErrClosedPipe {
			glog.Errorf("sim: %v", err)
		}
	}()
	return &pipePort{Conn: host}
}

// Wait blocks until the board stopped.
func (f *Firmware) Wait() {
	f.lock.Lock()
	done := f.done
	f.lock.Unlock()
	if done != nil {
		<-done
	}
}

// Close powers the board off.
func (f *Firmware) Close() error {
	f.lock.Lock()
	conn := f.conn
	f.lock.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Latch returns the latched command identifier, firmware.IdleCommand when
// idle.
func (f *Firmware) Latch() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.latch
}

// State maps the latch to a link.State.
func (f *Firmware) State() link.State {
	if f.Latch() == firmware.IdleCommand {
		return link.StateIdle
	}
	return link.StateCommandPending
}

// Acked returns the identifiers acknowledged so far.
func (f *Firmware) Acked() []int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]int(nil), f.acked...)
}

// Dispatched returns the identifiers a handler was started for.
func (f *Firmware) Dispatched() []int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]int(nil), f.dispatched...)
}

func (f *Firmware) serve(conn net.Conn) error {
	r := bufio.NewReader(conn)
	for {
		frame, err := readFrame(r, f.cfg.CmdTerminator)
		if err != nil {
			return err
		}
		id, ok := parseCommand(frame)
		if !ok {
			glog.V(4).Infof("sim: drop frame %q", frame)
			continue
		}

		f.lock.Lock()
		f.latch = id
		f.acked = append(f.acked, id)
		h := f.handlers[id]
		if h != nil {
			f.dispatched = append(f.dispatched, id)
		}
		f.lock.Unlock()
		if err := f.dispatch(conn, r, id, h); err != nil {
			return err
		}
	}
}

func (f *Firmware) dispatch(conn net.Conn, r *bufio.Reader, id int, h Handler) error {
	f.busy.Lock()
	defer f.busy.Unlock()
	if _, err := io.WriteString(conn, "ok"+f.cfg.CmdTerminator); err != nil {
		return err
	}
	if h == nil {
		// no clause matches, the latch is kept until the next command.
		return nil
	}
	if err := h(&Call{ID: id, fw: f, r: r, w: conn}); err != nil {
		if err == io.EOF || err == io.ErrClosedPipe {
			return err
		}
		glog.Warningf("sim: command %d: %v", id, err)
	}
	f.lock.Lock()
	f.latch = firmware.IdleCommand
	f.lock.Unlock()
	return nil
}

// Settle waits for the handler of the last acknowledged command to return.
func (f *Firmware) Settle() {
	f.busy.Lock()
	f.busy.Unlock()
}

// Call is the context of a running handler.
type Call struct {
	ID int
	fw *Firmware
	r  *bufio.Reader
	w  io.Writer
}

// ReceiveData reads a data frame, restores spaces and acks it.
func (c *Call) ReceiveData() (string, error) {
	cfg := c.fw.cfg
	frame, err := readFrame(c.r, cfg.DataTerminator)
	if err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.w, "ok"+cfg.DataTerminator); err != nil {
		return "", err
	}
	return link.DecodePayload(cfg, frame), nil
}

// SendResponse writes a response frame.
func (c *Call) SendResponse(text string) error {
	_, err := io.WriteString(c.w, text+c.fw.cfg.DataTerminator)
	return err
}

func readFrame(r *bufio.Reader, term string) (string, error) {
	var b strings.Builder
	for !strings.HasSuffix(b.String(), term) {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		b.WriteByte(c)
	}
	s := b.String()
	return s[:len(s)-len(term)], nil
}

func parseCommand(frame string) (int, bool) {
	if frame == "" {
		return 0, false
	}
	for _, c := range frame {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(frame)
	return id, err == nil
}

type pipePort struct {
	net.Conn
}

func (p *pipePort) Flush() error {
	return nil
}

package remote

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/ardubridge/pkg/framework"
)

// Server answers requests read from ReadWriter by invoking them on Target,
// one at a time.
type Server struct {
	ReadWriter PacketReadWriter
	Target     Target

	sendLock sync.Mutex
}

// NewServer creates a Server.
func NewServer(rw PacketReadWriter, target Target) *Server {
	return &Server{ReadWriter: rw, Target: target}
}

// Run implements Runnable. It returns when the ReadWriter fails or ctx is
// done.
func (s *Server) Run(ctx context.Context) error {
	return fx.RunWithContextCloser(ctx, s, func() error {
		return s.serve(ctx)
	})
}

func (s *Server) serve(ctx context.Context) error {
	for {
		pkt, err := s.ReadWriter.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		req, err := DecodeRequest(pkt)
		if err != nil {
			// Without an ID nobody waits for the reply.
			if req == nil {
				glog.Warningf("Dropped packet: %v", err)
				continue
			}
			if err = s.reply(&Reply{ID: req.ID, Error: err.Error()}); err != nil {
				return err
			}
			continue
		}
		glog.V(2).Infof("Request %s: %s.%s%v", req.ID, req.Device, req.Method, req.Args)
		rep := &Reply{ID: req.ID}
		if rep.Result, err = s.Target.Invoke(ctx, req.Device, req.Method, req.Args...); err != nil {
			rep.Result, rep.Error = "", err.Error()
		}
		if err := s.reply(rep); err != nil {
			return err
		}
	}
}

func (s *Server) reply(rep *Reply) error {
	pkt, err := rep.Encode()
	if err != nil {
		return err
	}
	s.sendLock.Lock()
	defer s.sendLock.Unlock()
	return s.ReadWriter.WritePacket(pkt)
}

// Close implements io.Closer.
func (s *Server) Close() error {
	if closer, ok := s.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

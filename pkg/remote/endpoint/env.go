// Package endpoint sets up the remote control surface from a URL.
//
// mqtt://host:1883/prefix/ serves through an MQTT broker,
// ws://host:8080/path accepts websocket connections and tcp://host:port
// accepts length prefixed packet streams.
package endpoint

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/bridge"
	fx "github.com/robotalks/ardubridge/pkg/framework"
	"github.com/robotalks/ardubridge/pkg/remote"
	"github.com/robotalks/ardubridge/pkg/remote/mqtt"
	"github.com/robotalks/ardubridge/pkg/remote/stream"
	"github.com/robotalks/ardubridge/pkg/remote/websocket"
)

// Config provides common options to serve or reach a board remotely.
type Config struct {
	// URL specifies the endpoint, e.g. mqtt://host:port/topic-prefix/
	URL string
	// BoardID names the board, defaults to one derived from the machine ID.
	BoardID string
	// Telemetry is the sensor polling interval, 0 disables it. It's only
	// published over MQTT.
	Telemetry time.Duration
}

var defaultConfig = Config{
	URL: "mqtt://localhost:1883/ardubridge/",
}

func init() {
	if val := os.Getenv("ARDU_MQTT_URL"); val != "" {
		defaultConfig.URL = val
	}
	if val := os.Getenv("ARDU_BOARD_ID"); val != "" {
		defaultConfig.BoardID = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.URL, "remote", defaultConfig.URL, "Remote endpoint URL (mqtt://, ws:// or tcp://).")
	flag.StringVar(&defaultConfig.BoardID, "board-id", defaultConfig.BoardID, "Board ID used in remote topics.")
	flag.DurationVar(&defaultConfig.Telemetry, "telemetry", defaultConfig.Telemetry, "Sensor polling interval, 0 to disable.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MachineID derives a board ID from the machine ID, which stays private.
func MachineID() string {
	id, err := machineid.ProtectedID("ardubridge")
	if err != nil {
		glog.Warningf("Machine ID unavailable: %v", err)
		return "ardubridge"
	}
	return id[:12]
}

// Board returns BoardID or MachineID.
func (c *Config) Board() string {
	if c.BoardID != "" {
		return c.BoardID
	}
	return MachineID()
}

func (c *Config) parse() (*url.URL, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %v", err)
	}
	switch u.Scheme {
	case "mqtt", "tcp", "ws":
		return u, nil
	}
	return nil, fmt.Errorf("unknown remote URL scheme: %q", u.Scheme)
}

// Serve serves the registered devices of a until ctx is done.
func (c *Config) Serve(ctx context.Context, a *bridge.Arduino) error {
	u, err := c.parse()
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "mqtt":
		return c.serveMQTT(ctx, a)
	case "ws":
		return serveWebsocket(ctx, u, a)
	default:
		return serveStream(ctx, u, a)
	}
}

// MustServe serves and fails on error.
func (c *Config) MustServe(ctx context.Context, a *bridge.Arduino) {
	if err := c.Serve(ctx, a); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalln(err)
	}
}

func (c *Config) serveMQTT(ctx context.Context, a *bridge.Arduino) error {
	board := c.Board()
	ann, err := mqtt.NewAnnouncer(c.URL, board, remote.Describe(board, a).Encode())
	if err != nil {
		return err
	}
	if err := ann.Queue.Connect(); err != nil {
		return err
	}
	rw := mqtt.NewPacketReadWriter(ann.Queue).ForServer(board)
	if err := rw.Subscribe(); err != nil {
		ann.Queue.Close()
		return err
	}
	glog.Infof("Serving board %s on %s", board, c.URL)
	runner := fx.NewRunnerWith(ctx)
	runner.Go(
		fx.NamedRun("server", remote.NewServer(rw, a)),
		fx.NamedRun("announcer", ann),
	)
	if c.Telemetry > 0 {
		telemetry := &remote.Telemetry{Target: a, Publish: ann.PublishState, Timeout: c.Telemetry}
		runner.Go(fx.NamedRun("telemetry", fx.NewLoop(c.Telemetry, telemetry)))
	}
	return runner.WaitAny()
}

// Handler serves each websocket connection with a remote.Server on target.
func Handler(ctx context.Context, target remote.Target) http.Handler {
	return websocket.Handler(func(rw *websocket.ReadWriter) {
		if err := remote.NewServer(rw, target).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			glog.V(2).Infof("Websocket client left: %v", err)
		}
	})
}

func serveWebsocket(ctx context.Context, u *url.URL, target remote.Target) error {
	path := u.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.Handle(path, Handler(ctx, target))
	server := &http.Server{Addr: u.Host, Handler: mux}
	glog.Infof("Serving websocket on %s%s", u.Host, path)
	err := fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeListener serves length prefixed packet streams accepted from ln.
func ServeListener(ctx context.Context, ln net.Listener, target remote.Target) error {
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return err
			}
			glog.V(2).Infof("Stream client %s", conn.RemoteAddr())
			go func() {
				if err := remote.NewServer(stream.New(conn), target).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					glog.V(2).Infof("Stream client %s left: %v", conn.RemoteAddr(), err)
				}
			}()
		}
	})
}

func serveStream(ctx context.Context, u *url.URL, target remote.Target) error {
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return err
	}
	glog.Infof("Serving streams on %s", ln.Addr())
	return ServeListener(ctx, ln, target)
}

// Dial connects to a served board. The client stops when ctx is done.
func (c *Config) Dial(ctx context.Context) (*remote.Client, error) {
	u, err := c.parse()
	if err != nil {
		return nil, err
	}
	var rw remote.PacketReadWriter
	switch u.Scheme {
	case "mqtt":
		q, err := mqtt.NewQueueFromURL(c.URL)
		if err != nil {
			return nil, err
		}
		if err := q.Connect(); err != nil {
			return nil, err
		}
		mrw := mqtt.NewPacketReadWriter(q).ForClient(c.Board())
		if err := mrw.Subscribe(); err != nil {
			q.Close()
			return nil, err
		}
		go func() {
			<-ctx.Done()
			q.Close()
		}()
		rw = mrw
	case "ws":
		wrw, err := websocket.Dial(c.URL, "")
		if err != nil {
			return nil, err
		}
		rw = wrw
	default:
		conn, err := net.Dial("tcp", u.Host)
		if err != nil {
			return nil, err
		}
		rw = stream.New(conn)
	}
	client := remote.NewClient(rw)
	go func() {
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("Remote client stopped: %v", err)
		}
	}()
	return client, nil
}

// MustDial dials and fails on error.
func (c *Config) MustDial(ctx context.Context) *remote.Client {
	client, err := c.Dial(ctx)
	if err != nil {
		log.Fatalln(err)
	}
	return client
}

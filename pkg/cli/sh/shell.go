// Package sh provides an interactive shell to declare, flash and drive the
// devices of a board, locally or through a remote endpoint.
package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/devices"
	"github.com/robotalks/ardubridge/pkg/manifest"
	"github.com/robotalks/ardubridge/pkg/remote"
	"github.com/robotalks/ardubridge/pkg/remote/endpoint"
	"github.com/robotalks/ardubridge/pkg/toolchain"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	// Timeout bounds a single command.
	Timeout time.Duration

	Shell   *ishell.Shell
	Arduino *bridge.Arduino
	Bench   *devices.Bench
	Remote  *remote.Client
	Config  *endpoint.Config

	cancelRemote context.CancelFunc
}

const (
	shellKey        = "$shell"
	detachedPrompt  = "[detached] > "
	attachedPrompt  = "[%s] > "
	simulatedPrompt = "[sim] > "
	remotePrompt    = "[remote %s] > "
)

// ErrNoTarget indicates a call without a board or a remote connection.
var ErrNoTarget = errors.New("not attached or connected")

var (
	evalOnly   bool
	outputJSON bool
	simulate   bool

	commands = []*ishell.Cmd{
		&DevicesCmd,
		&CallCmd,
		&RenderCmd,
		&BuildCmd,
		&AttachCmd,
		&DetachCmd,
		&ResyncCmd,
		&ConnectCmd,
		&DisconnectCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.BoolVar(&simulate, "sim", simulate, "Run against an emulated board.")
}

// AddCmds adds commands to shells created afterwards.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell on a.
func New(a *bridge.Arduino, conf *endpoint.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     10 * time.Second,

		Shell:   ishell.New(),
		Arduino: a,
		Config:  conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(detachedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

func (s *Shell) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.Timeout)
}

func (s *Shell) print(c *ishell.Context, v interface{}, text string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(text)
}

// Target is where calls go, the remote connection if any.
func (s *Shell) Target() (remote.Target, error) {
	if s.Remote != nil {
		return s.Remote, nil
	}
	if s.Arduino != nil && s.Arduino.Session() != nil {
		return s.Arduino, nil
	}
	return nil, ErrNoTarget
}

// Call invokes a device method.
func (s *Shell) Call(ctx context.Context, device, method string, args ...string) (string, error) {
	target, err := s.Target()
	if err != nil {
		return "", err
	}
	return target.Invoke(ctx, device, method, args...)
}

// Simulate attaches the board to an emulator.
func (s *Shell) Simulate() *devices.Bench {
	s.Bench = s.Arduino.Simulate()
	s.Shell.SetPrompt(simulatedPrompt)
	return s.Bench
}

// Attach attaches the board to its serial port.
func (s *Shell) Attach(ctx context.Context) error {
	if err := s.Arduino.Attach(ctx); err != nil {
		return err
	}
	s.Bench = nil
	s.Shell.SetPrompt(fmt.Sprintf(attachedPrompt, s.Arduino.Config().Port))
	return nil
}

// Detach detaches the board.
func (s *Shell) Detach() error {
	s.Bench = nil
	s.Shell.SetPrompt(detachedPrompt)
	return s.Arduino.Detach()
}

// Connect connects a remote board, calls go there afterwards.
func (s *Shell) Connect(url string) error {
	conf := *s.Config
	if url != "" {
		conf.URL = url
	}
	ctx, cancel := context.WithCancel(context.Background())
	client, err := conf.Dial(ctx)
	if err != nil {
		cancel()
		return err
	}
	s.Disconnect()
	s.Remote, s.cancelRemote = client, cancel
	s.Shell.SetPrompt(fmt.Sprintf(remotePrompt, conf.Board()))
	return nil
}

// Disconnect drops the remote connection.
func (s *Shell) Disconnect() {
	if s.cancelRemote != nil {
		s.cancelRemote()
		s.Remote, s.cancelRemote = nil, nil
		s.Shell.SetPrompt(detachedPrompt)
	}
}

// Close disconnects and cleans up the board.
func (s *Shell) Close() error {
	s.Disconnect()
	ctx, cancel := s.context()
	defer cancel()
	return s.Arduino.Cleanup(ctx)
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if simulate {
		s.Simulate()
	}
	defer s.Close()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// DeviceLine describes a registered device.
type DeviceLine struct {
	Name    string   `json:"name"`
	Owner   string   `json:"owner"`
	Pins    []int    `json:"pins"`
	Methods []string `json:"methods"`
}

// Devices lists registered devices.
func (s *Shell) Devices() []DeviceLine {
	names := s.Arduino.DeviceNames()
	lines := make([]DeviceLine, 0, len(names))
	for _, name := range names {
		dev, _ := s.Arduino.Device(name)
		desc := dev.Descriptor()
		line := DeviceLine{Name: name, Owner: desc.Owner(), Pins: desc.PinNumbers()}
		for _, cmd := range desc.Commands {
			line.Methods = append(line.Methods, fmt.Sprintf("%s=%d", cmd.Method, cmd.ID))
		}
		lines = append(lines, line)
	}
	return lines
}

var (
	// DevicesCmd lists registered devices.
	DevicesCmd = ishell.Cmd{
		Name:    "devices",
		Aliases: []string{"ls"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			lines := s.Devices()
			if s.OutputJSON {
				s.print(c, lines, "")
				return
			}
			if len(lines) == 0 {
				c.Println("No devices")
				return
			}
			for _, line := range lines {
				c.Printf("%s (%s) pins %v: %v\n", line.Name, line.Owner, line.Pins, line.Methods)
			}
		},
	}

	// CallCmd invokes a device method.
	CallCmd = ishell.Cmd{
		Name:    "call",
		Aliases: []string{"c"},
		Help:    "DEVICE METHOD [ARGS...]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("DEVICE and METHOD required"))
				return
			}
			s := ShellFrom(c)
			ctx, cancel := s.context()
			defer cancel()
			out, err := s.Call(ctx, c.Args[0], c.Args[1], c.Args[2:]...)
			if err != nil {
				c.Err(err)
				return
			}
			s.print(c, map[string]string{"result": out}, out)
		},
	}

	// RenderCmd prints the sketch or writes it to a directory.
	RenderCmd = ishell.Cmd{
		Name: "render",
		Help: "[DIR]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				ctx, cancel := s.context()
				defer cancel()
				path, err := s.Arduino.WriteSketch(ctx, c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				s.print(c, map[string]string{"path": path}, path)
				return
			}
			prog, err := s.Arduino.Render()
			if err != nil {
				c.Err(err)
				return
			}
			s.print(c, map[string]string{"stamp": prog.Stamp, "text": prog.Text}, prog.Text)
		},
	}

	// BuildCmd compiles and uploads the sketch.
	BuildCmd = ishell.Cmd{
		Name: "build",
		Help: "[fresh]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			fresh := len(c.Args) > 0 && c.Args[0] == "fresh"
			res, err := s.Arduino.Build(context.Background(), fresh)
			if err != nil {
				c.Err(err)
				return
			}
			if res.Outcome != toolchain.Success {
				if res.Output != "" {
					c.Print(res.Output)
				}
				c.Err(res.Err())
				return
			}
			text := "Uploaded"
			if res.Skipped {
				text = "Up to date"
			}
			s.print(c, map[string]interface{}{"outcome": res.Outcome.String(), "skipped": res.Skipped}, text)
		},
	}

	// AttachCmd opens the serial port, or an emulator with "sim".
	AttachCmd = ishell.Cmd{
		Name: "attach",
		Help: "[sim]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 && c.Args[0] == "sim" {
				s.Simulate()
				return
			}
			ctx, cancel := s.context()
			defer cancel()
			if err := s.Attach(ctx); err != nil {
				c.Err(err)
			}
		},
	}

	// DetachCmd closes the serial port.
	DetachCmd = ishell.Cmd{
		Name: "detach",
		Help: "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).Detach(); err != nil {
				c.Err(err)
			}
		},
	}

	// ResyncCmd drains the link.
	ResyncCmd = ishell.Cmd{
		Name: "resync",
		Help: "[QUIET]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			quiet := 200 * time.Millisecond
			if len(c.Args) > 0 {
				d, err := time.ParseDuration(c.Args[0])
				if err != nil {
					c.Err(fmt.Errorf("Invalid QUIET: %v", err))
					return
				}
				quiet = d
			}
			ctx, cancel := s.context()
			defer cancel()
			if err := s.Arduino.Resync(ctx, quiet); err != nil {
				c.Err(err)
			}
		},
	}

	// ConnectCmd connects a remote board.
	ConnectCmd = ishell.Cmd{
		Name: "connect",
		Help: "[URL]",
		Func: func(c *ishell.Context) {
			var url string
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if err := ShellFrom(c).Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd drops the remote connection.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}
)

// LoadArduino creates the board from the default configs and applies the
// manifest if one is configured.
func LoadArduino() (*bridge.Arduino, error) {
	cfg := bridge.Default()
	m, err := manifest.Default().Load()
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.Configure(cfg)
	}
	a, err := cfg.NewArduino()
	if err != nil {
		return nil, err
	}
	if m != nil {
		if _, err := m.Apply(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	a, err := LoadArduino()
	if err != nil {
		log.Fatalln(err)
	}
	New(a, endpoint.NewConfig()).Run(flag.Args()...)
}

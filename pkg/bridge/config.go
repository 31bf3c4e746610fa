package bridge

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/toolchain"
)

// Config defines how to reach and program a board.
type Config struct {
	// Port is the serial device, e.g. /dev/ttyACM0.
	Port string
	// Board is a board name known to arduino-cli or an FQBN.
	Board    string
	Firmware firmware.Config
	// ReservedPins are excluded from declarations, e.g. the serial lines 0 and 1.
	ReservedPins []int

	CLIPath string
	CLIArgs string
	// Format runs clang-format on written sketches.
	Format bool
	// InstallLibraries installs the libraries the sketch includes before
	// compiling.
	InstallLibraries bool
	// StampDir keeps the stamp of the last program flashed per port.
	StampDir string

	Timeout time.Duration
	// ResetDelay is waited after opening the port, boards reset on open.
	ResetDelay time.Duration
	// Verify refuses to attach when the board was flashed with a
	// different program.
	Verify bool
}

var defaultConfig = Config{
	Board:        "Arduino Uno",
	Firmware:     firmware.DefaultConfig(),
	ReservedPins: []int{0, 1},
	CLIPath:      toolchain.DefaultPath,
	StampDir:     filepath.Join(os.TempDir(), toolchain.DefaultSketchName),
	Timeout:      2 * time.Second,
	ResetDelay:   2 * time.Second,
}

func init() {
	if val := os.Getenv("ARDU_PORT"); val != "" {
		defaultConfig.Port = val
	}
	if val := os.Getenv("ARDU_BOARD"); val != "" {
		defaultConfig.Board = val
	}
	if val := os.Getenv("ARDU_CLI"); val != "" {
		defaultConfig.CLIPath = val
	}
	if val := os.Getenv("ARDU_CLI_ARGS"); val != "" {
		defaultConfig.CLIArgs = val
	}
	if val := os.Getenv("ARDU_STAMP_DIR"); val != "" {
		defaultConfig.StampDir = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Serial port of the board.")
	flag.StringVar(&defaultConfig.Board, "board", defaultConfig.Board, "Board name or FQBN.")
	flag.IntVar(&defaultConfig.Firmware.BaudRate, "baud", defaultConfig.Firmware.BaudRate, "Serial baud rate.")
	flag.StringVar(&defaultConfig.Firmware.WhitespaceSub, "whitespace-sub", defaultConfig.Firmware.WhitespaceSub, "Token replacing spaces in data frames.")
	flag.StringVar(&defaultConfig.CLIPath, "arduino-cli", defaultConfig.CLIPath, "Path to arduino-cli.")
	flag.StringVar(&defaultConfig.CLIArgs, "arduino-cli-args", defaultConfig.CLIArgs, "Extra arguments passed to arduino-cli.")
	flag.BoolVar(&defaultConfig.Format, "format", defaultConfig.Format, "Format sketches with clang-format.")
	flag.BoolVar(&defaultConfig.InstallLibraries, "install-libs", defaultConfig.InstallLibraries, "Install libraries used by the sketch.")
	flag.StringVar(&defaultConfig.StampDir, "stamp-dir", defaultConfig.StampDir, "Directory keeping flashed program stamps.")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Timeout of a serial exchange.")
	flag.DurationVar(&defaultConfig.ResetDelay, "reset-delay", defaultConfig.ResetDelay, "Delay after opening the serial port.")
	flag.BoolVar(&defaultConfig.Verify, "verify", defaultConfig.Verify, "Refuse to attach to a board running another program.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.ReservedPins = append([]int(nil), defaultConfig.ReservedPins...)
	return &conf
}

// NewArduino creates an Arduino using current config.
func (c *Config) NewArduino() (*Arduino, error) {
	return New(*c)
}

// MustNewArduino creates an Arduino and fails on error.
func (c *Config) MustNewArduino() *Arduino {
	a, err := c.NewArduino()
	if err != nil {
		log.Fatalln(err)
	}
	return a
}

package firmware

import (
	"fmt"
	"strings"
)

// Config is the session level configuration shared by the rendered sketch and
// the host side link. Both sides must use identical values.
type Config struct {
	BaudRate       int
	CmdTerminator  string
	DataTerminator string
	WhitespaceSub  string
}

// Defaults.
const (
	DefaultBaudRate       = 9600
	DefaultCmdTerminator  = "\n"
	DefaultDataTerminator = "\r\n"
	DefaultWhitespaceSub  = "||"
)

// DefaultConfig returns the default session config.
func DefaultConfig() Config {
	return Config{
		BaudRate:       DefaultBaudRate,
		CmdTerminator:  DefaultCmdTerminator,
		DataTerminator: DefaultDataTerminator,
		WhitespaceSub:  DefaultWhitespaceSub,
	}
}

// WithDefaults fills zero fields with defaults.
func (c Config) WithDefaults() Config {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.CmdTerminator == "" {
		c.CmdTerminator = DefaultCmdTerminator
	}
	if c.DataTerminator == "" {
		c.DataTerminator = DefaultDataTerminator
	}
	if c.WhitespaceSub == "" {
		c.WhitespaceSub = DefaultWhitespaceSub
	}
	return c
}

// Validate checks the config can be used on both sides of the link.
func (c Config) Validate() error {
	switch {
	case c.BaudRate <= 0:
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	case c.CmdTerminator == "":
		return fmt.Errorf("%w: empty command terminator", ErrInvalidConfig)
	case c.DataTerminator == "":
		return fmt.Errorf("%w: empty data terminator", ErrInvalidConfig)
	case c.WhitespaceSub == "":
		return fmt.Errorf("%w: empty whitespace substitution", ErrInvalidConfig)
	case strings.Contains(c.WhitespaceSub, " "):
		return fmt.Errorf("%w: whitespace substitution %q contains a space", ErrInvalidConfig, c.WhitespaceSub)
	}
	return nil
}

var cEscapes = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\r", `\r`,
	"\n", `\n`,
	"\t", `\t`,
	"\f", `\f`,
	"\v", `\v`,
)

// EscapeLiteral escapes s for use inside a C string literal.
func EscapeLiteral(s string) string {
	return cEscapes.Replace(s)
}

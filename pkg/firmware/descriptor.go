package firmware

import (
	"fmt"
	"regexp"
	"strings"
)

// IdleCommand is the latch value meaning no command is pending.
const IdleCommand = -1

// PinMode is how a pin is initialized in setup.
type PinMode string

// Pin modes.
const (
	PinInput         PinMode = "INPUT"
	PinInputPullUp   PinMode = "INPUT_PULLUP"
	PinInputPullDown PinMode = "INPUT_PULLDOWN"
	PinOutput        PinMode = "OUTPUT"
	// PinCustom leaves initialization to the device's own setup fragment.
	PinCustom PinMode = "custom"
)

// Pin is a pin assignment.
type Pin struct {
	Number int
	Mode   PinMode
}

// Slot names a template insertion point a fragment goes to.
type Slot string

// Slots.
const (
	SlotLibrary Slot = "library"
	SlotGlobal  Slot = "global"
	SlotSetup   Slot = "setup"
	SlotLoop    Slot = "loop"
	SlotMethod  Slot = "method"
)

// Fragment is one piece of generated source contributed by a device.
type Fragment struct {
	Slot  Slot
	Owner string
	// Name is the method name for SlotMethod and SlotLoop, empty otherwise.
	Name string
	Body string
}

// Method is a named routine a device exposes as a command.
type Method struct {
	Name string
	Body string
}

// Command maps a device method to its command identifier.
type Command struct {
	Method string
	ID     int
}

// DeviceSpec describes a device to be declared.
type DeviceSpec struct {
	Kind      string
	Pins      []Pin
	Methods   []Method
	Libraries []string
	Global    string
	Setup     string
	// Lines is the number of control lines the device requires, 0 if any
	// number of pins is acceptable.
	Lines int
}

// Descriptor is a declared device. It is immutable once declared.
type Descriptor struct {
	ID        int
	Kind      string
	Index     int
	Instance  int
	Pins      []Pin
	Commands  []Command
	fragments []Fragment
}

// Owner is the name fragments of this device are recorded under.
func (d *Descriptor) Owner() string {
	return fmt.Sprintf("%s_%d", d.Kind, d.Index)
}

// PinNumbers returns the pin numbers in assignment order.
func (d *Descriptor) PinNumbers() []int {
	nums := make([]int, len(d.Pins))
	for n, pin := range d.Pins {
		nums[n] = pin.Number
	}
	return nums
}

// CommandID looks up the identifier of a method.
func (d *Descriptor) CommandID(method string) (int, bool) {
	for _, cmd := range d.Commands {
		if cmd.Method == method {
			return cmd.ID, true
		}
	}
	return IdleCommand, false
}

// Fragments returns a copy of all fragments, loop clauses included, in
// library, global, setup, method, loop order.
func (d *Descriptor) Fragments() []Fragment {
	return append([]Fragment(nil), d.fragments...)
}

// FragmentsIn returns the fragments for a single slot.
func (d *Descriptor) FragmentsIn(slot Slot) []Fragment {
	var frags []Fragment
	for _, f := range d.fragments {
		if f.Slot == slot {
			frags = append(frags, f)
		}
	}
	return frags
}

// MethodName is the sketch routine name for a method of this device.
func (d *Descriptor) MethodName(method string) string {
	return camelCase(fmt.Sprintf("%s_%s_%d", method, d.Kind, d.Index))
}

func (d *Descriptor) clone() *Descriptor {
	c := *d
	c.Pins = append([]Pin(nil), d.Pins...)
	c.Commands = append([]Command(nil), d.Commands...)
	c.fragments = append([]Fragment(nil), d.fragments...)
	return &c
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func camelCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func setupCode(pins []Pin) string {
	var lines []string
	for _, pin := range pins {
		if pin.Mode == PinCustom || pin.Mode == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("pinMode(%d, %s);", pin.Number, pin.Mode))
	}
	return strings.Join(lines, "\n")
}

func normalizeBody(body string) string {
	return strings.TrimRight(body, "\r\n")
}

// buildFragments produces the fragment records for a descriptor in the order
// they are rendered.
func buildFragments(d *Descriptor, spec DeviceSpec) []Fragment {
	owner := d.Owner()
	var frags []Fragment
	for _, lib := range spec.Libraries {
		frags = append(frags, Fragment{Slot: SlotLibrary, Owner: owner, Body: "#include <" + lib + ">"})
	}
	if g := normalizeBody(spec.Global); g != "" {
		frags = append(frags, Fragment{Slot: SlotGlobal, Owner: owner, Body: g})
	}
	setup := setupCode(spec.Pins)
	if extra := normalizeBody(spec.Setup); extra != "" {
		if setup != "" {
			setup += "\n"
		}
		setup += extra
	}
	if setup != "" {
		frags = append(frags, Fragment{Slot: SlotSetup, Owner: owner, Body: setup})
	}
	for _, m := range spec.Methods {
		frags = append(frags, Fragment{Slot: SlotMethod, Owner: owner, Name: m.Name, Body: normalizeBody(m.Body)})
	}
	for _, cmd := range d.Commands {
		frags = append(frags, Fragment{
			Slot:  SlotLoop,
			Owner: owner,
			Name:  cmd.Method,
			Body: fmt.Sprintf("else if (currentCommand == %d) { %s(); currentCommand = IDLE_COMMAND; }",
				cmd.ID, d.MethodName(cmd.Method)),
		})
	}
	return frags
}

// ValidateFragment checks a fragment can be inserted into the skeleton without
// breaking its structure.
func ValidateFragment(f Fragment) error {
	if strings.Contains(f.Body, markerPrefix) {
		return &RenderError{Owner: f.Owner, Slot: f.Slot, Reason: "contains a section marker"}
	}
	if (f.Slot == SlotMethod || f.Slot == SlotLoop) && !identRe.MatchString(f.Name) {
		return &RenderError{Owner: f.Owner, Slot: f.Slot, Reason: fmt.Sprintf("invalid method name %q", f.Name)}
	}
	if f.Slot == SlotLibrary {
		return nil
	}
	if depth := braceDepth(f.Body); depth != 0 {
		return &RenderError{Owner: f.Owner, Slot: f.Slot, Reason: "unbalanced braces"}
	}
	return nil
}

// braceDepth returns the net curly brace depth of C source, ignoring string
// and character literals and comments. A negative intermediate depth is
// reported as -1.
func braceDepth(src string) int {
	depth := 0
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '"', '\'':
			for i++; i < len(src) && src[i] != c; i++ {
				if src[i] == '\\' {
					i++
				}
			}
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
			} else if i+1 < len(src) && src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					return -1
				}
				i += end + 3
			}
		case '{':
			depth++
		case '}':
			if depth--; depth < 0 {
				return -1
			}
		}
	}
	return depth
}

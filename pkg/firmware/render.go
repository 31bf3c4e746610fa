package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Program is a rendered sketch.
type Program struct {
	Text        string
	Config      Config
	Descriptors []*Descriptor
	// Stamp identifies the text, it's the hex encoded SHA-256 digest.
	Stamp string
	// Generation is the registry generation the program was rendered from.
	Generation uint64
}

// Source implements the source accessor used by the toolchain.
func (p *Program) Source() string {
	return p.Text
}

// Stale reports whether reg changed after p was rendered from it.
func (p *Program) Stale(reg *Registry) bool {
	return reg.Generation() != p.Generation
}

// Lookup finds the descriptor owning a command identifier.
func (p *Program) Lookup(id int) (*Descriptor, string, bool) {
	for _, d := range p.Descriptors {
		for _, cmd := range d.Commands {
			if cmd.ID == id {
				return d, cmd.Method, true
			}
		}
	}
	return nil, "", false
}

// RenderRegistry renders the current descriptors of reg.
func RenderRegistry(cfg Config, reg *Registry) (*Program, error) {
	reg.lock.RLock()
	gen := reg.generation
	descs := make([]*Descriptor, len(reg.descs))
	for n, d := range reg.descs {
		descs[n] = d.clone()
	}
	reg.lock.RUnlock()
	prog, err := Render(cfg, descs)
	if err != nil {
		return nil, err
	}
	prog.Generation = gen
	return prog, nil
}

// Render produces the sketch for descriptors in order. The output only
// depends on the arguments.
func Render(cfg Config, descs []*Descriptor) (*Program, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, d := range descs {
		for _, f := range d.fragments {
			if err := ValidateFragment(f); err != nil {
				return nil, err
			}
		}
	}

	var header, setup, loop, methods strings.Builder
	for _, slot := range []Slot{SlotLibrary, SlotGlobal} {
		for _, d := range descs {
			for _, f := range d.FragmentsIn(slot) {
				writeSection(&header, f, f.Body)
			}
		}
	}
	for _, d := range descs {
		for _, f := range d.FragmentsIn(SlotSetup) {
			writeSection(&setup, f, f.Body)
		}
		for _, f := range d.FragmentsIn(SlotMethod) {
			writeSection(&methods, f, "void "+d.MethodName(f.Name)+"() {\n"+f.Body+"\n}")
		}
		for _, f := range d.FragmentsIn(SlotLoop) {
			writeSection(&loop, f, f.Body)
		}
	}

	var out strings.Builder
	err := skeleton.Execute(&out, &skeletonData{
		Header:         header.String(),
		BaudRate:       cfg.BaudRate,
		Setup:          setup.String(),
		Loop:           loop.String(),
		Methods:        methods.String(),
		CmdTerminator:  EscapeLiteral(cfg.CmdTerminator),
		DataTerminator: EscapeLiteral(cfg.DataTerminator),
		WhitespaceSub:  EscapeLiteral(cfg.WhitespaceSub),
	})
	if err != nil {
		return nil, err
	}

	text := out.String()
	sum := sha256.Sum256([]byte(text))
	prog := &Program{
		Text:        text,
		Config:      cfg,
		Descriptors: make([]*Descriptor, len(descs)),
		Stamp:       hex.EncodeToString(sum[:]),
	}
	for n, d := range descs {
		prog.Descriptors[n] = d.clone()
	}
	return prog, nil
}

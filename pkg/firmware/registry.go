package firmware

import (
	"sync"
)

// Registry holds the devices declared for one board, in declaration order.
type Registry struct {
	reserved   map[int]bool
	excluded   map[int]bool
	descs      []*Descriptor
	pinsUsed   map[int]string
	nextID     int
	generation uint64
	lock       sync.RWMutex
}

// NewRegistry creates a Registry. When reserved pins are given, declarations
// may only use those pins.
func NewRegistry(reserved ...int) *Registry {
	r := &Registry{pinsUsed: make(map[int]string), excluded: make(map[int]bool)}
	if len(reserved) > 0 {
		r.reserved = make(map[int]bool, len(reserved))
		for _, pin := range reserved {
			r.reserved[pin] = true
		}
	}
	return r
}

// Exclude keeps pins from being declared, whether or not they are reserved.
func (r *Registry) Exclude(pins ...int) *Registry {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, pin := range pins {
		r.excluded[pin] = true
	}
	return r
}

// Declare adds a device and assigns one command identifier per method.
// On error nothing is changed.
func (r *Registry) Declare(spec DeviceSpec) (*Descriptor, error) {
	pins := make([]int, len(spec.Pins))
	for n, pin := range spec.Pins {
		pins[n] = pin.Number
	}
	if !identRe.MatchString(spec.Kind) || len(spec.Methods) == 0 {
		return nil, &RegistrationError{Kind: spec.Kind, Pins: pins, Err: ErrInvalidDevice}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if spec.Lines > 0 && len(spec.Pins) != spec.Lines {
		return nil, &RegistrationError{Kind: spec.Kind, Pins: pins, Err: ErrCapacity}
	}
	seen := make(map[int]bool, len(pins))
	for _, pin := range pins {
		if seen[pin] || r.pinsUsed[pin] != "" {
			return nil, &RegistrationError{Kind: spec.Kind, Pins: pins, Err: ErrDuplicatePin}
		}
		if r.excluded[pin] {
			return nil, &RegistrationError{Kind: spec.Kind, Pins: pins, Err: ErrExcludedPin}
		}
		if r.reserved != nil && !r.reserved[pin] {
			return nil, &RegistrationError{Kind: spec.Kind, Pins: pins, Err: ErrCapacity}
		}
		seen[pin] = true
	}

	d := &Descriptor{
		ID:       r.nextID,
		Kind:     spec.Kind,
		Index:    len(r.descs),
		Instance: r.countKind(spec.Kind) + 1,
		Pins:     append([]Pin(nil), spec.Pins...),
	}
	for n, m := range spec.Methods {
		d.Commands = append(d.Commands, Command{Method: m.Name, ID: r.nextID + n})
	}
	d.fragments = buildFragments(d, spec)
	for _, f := range d.fragments {
		if err := ValidateFragment(f); err != nil {
			return nil, err
		}
	}

	r.nextID += len(spec.Methods)
	r.descs = append(r.descs, d)
	for _, pin := range pins {
		r.pinsUsed[pin] = d.Owner()
	}
	r.generation++
	return d.clone(), nil
}

// Descriptors returns the declared devices in declaration order.
func (r *Registry) Descriptors() []*Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	descs := make([]*Descriptor, len(r.descs))
	for n, d := range r.descs {
		descs[n] = d.clone()
	}
	return descs
}

// ByKind returns declared devices of a kind in declaration order.
func (r *Registry) ByKind(kind string) []*Descriptor {
	r.lock.RLock()
	defer r.lock.RUnlock()
	var descs []*Descriptor
	for _, d := range r.descs {
		if d.Kind == kind {
			descs = append(descs, d.clone())
		}
	}
	return descs
}

// NextInstance returns the 1-based instance number the next device of kind
// would get. It is used to name per-device globals.
func (r *Registry) NextInstance(kind string) int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.countKind(kind) + 1
}

// PinOwner returns the owner of a used pin.
func (r *Registry) PinOwner(pin int) (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	owner, ok := r.pinsUsed[pin]
	return owner, ok
}

// Len returns the number of declared devices.
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.descs)
}

// NextID is the identifier the next declared method receives.
func (r *Registry) NextID() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.nextID
}

// Generation changes whenever the set of descriptors changes.
func (r *Registry) Generation() uint64 {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.generation
}

// Reset drops all declared devices. Command identifiers are not reused.
func (r *Registry) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.descs = nil
	r.pinsUsed = make(map[int]string)
	r.generation++
}

func (r *Registry) countKind(kind string) (count int) {
	for _, d := range r.descs {
		if d.Kind == kind {
			count++
		}
	}
	return
}

package devices

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/firmware"
	"github.com/robotalks/ardubridge/pkg/sim"
)

// Bench is the simulated hardware wired to an emulated board.
type Bench struct {
	levels      map[int]bool
	angles      map[int]int
	temperature float64
	humidity    float64
	lock        sync.Mutex
}

// NewBench creates a Bench at 25C and 50% humidity.
func NewBench() *Bench {
	return &Bench{
		levels:      make(map[int]bool),
		angles:      make(map[int]int),
		temperature: 25,
		humidity:    50,
	}
}

// Simulate installs the behaviour of every known kind in descs on fw.
func Simulate(fw *sim.Firmware, descs []*firmware.Descriptor) *Bench {
	b := NewBench()
	b.Install(fw, descs)
	return b
}

// Level returns the level of a pin.
func (b *Bench) Level(pin int) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.levels[pin]
}

// SetLevel drives an input pin.
func (b *Bench) SetLevel(pin int, level bool) {
	b.lock.Lock()
	b.levels[pin] = level
	b.lock.Unlock()
}

// Angle returns the angle of the servo on pin.
func (b *Bench) Angle(pin int) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.angles[pin]
}

// SetClimate sets what DHT sensors read.
func (b *Bench) SetClimate(temperature, humidity float64) {
	b.lock.Lock()
	b.temperature, b.humidity = temperature, humidity
	b.lock.Unlock()
}

func (b *Bench) climate() (float64, float64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.temperature, b.humidity
}

func (b *Bench) write(levels map[int]bool) sim.Handler {
	return func(*sim.Call) error {
		b.lock.Lock()
		for pin, level := range levels {
			b.levels[pin] = level
		}
		b.lock.Unlock()
		return nil
	}
}

// Install adds handlers for descs on fw.
func (b *Bench) Install(fw *sim.Firmware, descs []*firmware.Descriptor) {
	for _, d := range descs {
		pins := d.PinNumbers()
		handlers := make(map[string]sim.Handler)
		switch d.Kind {
		case KindLed, KindRelay:
			handlers["turn_on"] = b.write(map[int]bool{pins[0]: true})
			handlers["turn_off"] = b.write(map[int]bool{pins[0]: false})
		case KindButton, KindHallEffectSensor:
			pin := pins[0]
			if d.Pins[0].Mode == firmware.PinInputPullUp {
				b.SetLevel(pin, true)
			}
			handlers["read"] = func(c *sim.Call) error {
				if b.Level(pin) {
					return c.SendResponse("1")
				}
				return c.SendResponse("0")
			}
		case KindServoMotor:
			pin := pins[0]
			handlers["rotate"] = func(c *sim.Call) error {
				data, err := c.ReceiveData()
				if err != nil {
					return err
				}
				angle, _ := strconv.Atoi(data)
				b.lock.Lock()
				b.angles[pin] = angle
				b.lock.Unlock()
				return nil
			}
		case KindDHT11, KindDHT22:
			handlers["get_data"] = func(c *sim.Call) error {
				t, h := b.climate()
				return c.SendResponse(fmt.Sprintf("%.2f %.2f", t, h))
			}
			handlers["get_temperature"] = func(c *sim.Call) error {
				t, _ := b.climate()
				return c.SendResponse(fmt.Sprintf("%.2f", t))
			}
			handlers["get_humidity"] = func(c *sim.Call) error {
				_, h := b.climate()
				return c.SendResponse(fmt.Sprintf("%.2f", h))
			}
		case KindL293DMotor:
			en, a, bb := pins[0], pins[1], pins[2]
			handlers["forward"] = b.write(map[int]bool{a: true, bb: false, en: true})
			handlers["backward"] = b.write(map[int]bool{a: false, bb: true, en: true})
			handlers["stop"] = b.write(map[int]bool{en: false})
		default:
			glog.Warningf("sim: no behaviour for %s", d.Owner())
			continue
		}
		for _, cmd := range d.Commands {
			if h, ok := handlers[cmd.Method]; ok {
				fw.Handle(cmd.ID, h)
			}
		}
	}
}

package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/ardubridge/pkg/bridge"
	"github.com/robotalks/ardubridge/pkg/devices"
)

// DeviceInfo describes a registered device.
type DeviceInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Pins    []int    `json:"pins"`
	Methods []string `json:"methods"`
}

// Meta describes a board to remote clients.
type Meta struct {
	Board   string       `json:"board"`
	Stamp   string       `json:"stamp,omitempty"`
	Devices []DeviceInfo `json:"devices"`
}

// Describe builds the Meta of the registered devices of a.
func Describe(board string, a *bridge.Arduino) *Meta {
	meta := &Meta{Board: board}
	if prog, err := a.Render(); err == nil {
		meta.Stamp = prog.Stamp
	}
	for _, name := range a.DeviceNames() {
		dev, _ := a.Device(name)
		desc := dev.Descriptor()
		info := DeviceInfo{Name: name, Kind: desc.Kind, Pins: desc.PinNumbers()}
		for _, cmd := range desc.Commands {
			info.Methods = append(info.Methods, cmd.Method)
		}
		meta.Devices = append(meta.Devices, info)
	}
	return meta
}

// Encode serializes meta as JSON.
func (m *Meta) Encode() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return data
}

// PollMethods are the methods polled by Telemetry per kind.
var PollMethods = map[string]string{
	devices.KindButton:           "read",
	devices.KindHallEffectSensor: "read",
	devices.KindDHT11:            "get_data",
	devices.KindDHT22:            "get_data",
}

// Telemetry reads the sensors of a board and publishes the readings as a
// JSON object by device name. It's a framework.Task.
type Telemetry struct {
	Target  *bridge.Arduino
	Publish func([]byte) error
	// Timeout bounds a single round of reads.
	Timeout time.Duration
}

// Tick implements framework.Task. A failed read is published as null.
func (t *Telemetry) Tick(ctx context.Context, now time.Time) error {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	state := make(map[string]interface{})
	for _, name := range t.Target.DeviceNames() {
		dev, _ := t.Target.Device(name)
		method, ok := PollMethods[dev.Descriptor().Kind]
		if !ok {
			continue
		}
		val, err := dev.Invoke(ctx, method)
		if err != nil {
			glog.V(2).Infof("Poll %s: %v", name, err)
			state[name] = nil
			continue
		}
		state[name] = val
	}
	if len(state) == 0 {
		return nil
	}
	data, err := json.Marshal(map[string]interface{}{
		"time":    now.UTC().Format(time.RFC3339Nano),
		"devices": state,
	})
	if err != nil {
		return err
	}
	return t.Publish(data)
}

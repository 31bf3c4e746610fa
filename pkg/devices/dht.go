package devices

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robotalks/ardubridge/pkg/firmware"
)

// DHT sensor models, also used as kinds.
const (
	KindDHT11 = "dht11"
	KindDHT22 = "dht22"
)

// DHT is a DHT11 or DHT22 temperature and humidity sensor.
type DHT struct {
	device
}

// NewDHT11 declares a DHT11 on pin.
func NewDHT11(a Arduino, pin int) (*DHT, error) {
	return newDHT(a, KindDHT11, pin)
}

// NewDHT22 declares a DHT22 on pin.
func NewDHT22(a Arduino, pin int) (*DHT, error) {
	return newDHT(a, KindDHT22, pin)
}

func newDHT(a Arduino, kind string, pin int) (*DHT, error) {
	v := fmt.Sprintf("dht%d", a.NextInstance(kind))
	d, err := declare(a, firmware.DeviceSpec{
		Kind:      kind,
		Pins:      pinSpec(pin, firmware.PinCustom),
		Libraries: []string{"DHT.h"},
		Global:    fmt.Sprintf("DHT %s(%d, %s);", v, pin, strings.ToUpper(kind)),
		Setup:     v + ".begin();",
		Methods: []firmware.Method{
			{Name: "get_data", Body: fmt.Sprintf(`sendResponse(String(%s.readTemperature()) + " " + String(%s.readHumidity()));`, v, v)},
			{Name: "get_temperature", Body: fmt.Sprintf("sendResponse(String(%s.readTemperature()));", v)},
			{Name: "get_humidity", Body: fmt.Sprintf("sendResponse(String(%s.readHumidity()));", v)},
		},
	})
	if err != nil {
		return nil, err
	}
	return &DHT{device: d}, nil
}

// Data reads temperature in Celsius and relative humidity in percent.
func (d *DHT) Data(ctx context.Context) (temperature, humidity float64, err error) {
	resp, err := d.query(ctx, "get_data")
	if err != nil {
		return 0, 0, err
	}
	fields := strings.Fields(resp)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %s data %q", ErrSensorRead, d.desc.Kind, resp)
	}
	if temperature, err = parseReading(d.desc.Kind, fields[0]); err != nil {
		return 0, 0, err
	}
	if humidity, err = parseReading(d.desc.Kind, fields[1]); err != nil {
		return 0, 0, err
	}
	return
}

// Temperature reads temperature in Celsius.
func (d *DHT) Temperature(ctx context.Context) (float64, error) {
	resp, err := d.query(ctx, "get_temperature")
	if err != nil {
		return 0, err
	}
	return parseReading(d.desc.Kind, resp)
}

// Humidity reads relative humidity in percent.
func (d *DHT) Humidity(ctx context.Context) (float64, error) {
	resp, err := d.query(ctx, "get_humidity")
	if err != nil {
		return 0, err
	}
	return parseReading(d.desc.Kind, resp)
}

// parseReading rejects "nan", which the DHT library reports on a failed
// read.
func parseReading(kind, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s reading %q", ErrSensorRead, kind, s)
	}
	return v, nil
}

// Invoke implements Device.
func (d *DHT) Invoke(ctx context.Context, method string, args ...string) (string, error) {
	if err := expectArgs(method, args, 0); err != nil {
		return "", err
	}
	switch method {
	case "get_data":
		t, h, err := d.Data(ctx)
		if err != nil {
			return "", err
		}
		return formatFloat(t) + " " + formatFloat(h), nil
	case "get_temperature":
		t, err := d.Temperature(ctx)
		return formatFloat(t), err
	case "get_humidity":
		h, err := d.Humidity(ctx)
		return formatFloat(h), err
	}
	return "", fmt.Errorf("%w: %s.%s", ErrUnknownMethod, d.desc.Kind, method)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

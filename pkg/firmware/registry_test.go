package firmware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledSpec(pin int) DeviceSpec {
	return DeviceSpec{
		Kind: "led",
		Pins: []Pin{{Number: pin, Mode: PinOutput}},
		Methods: []Method{
			{Name: "turn_on", Body: "digitalWrite(14, HIGH);"},
			{Name: "turn_off", Body: "digitalWrite(14, LOW);"},
		},
	}
}

func sensorSpec(pin int) DeviceSpec {
	return DeviceSpec{
		Kind:    "hall_effect_sensor",
		Pins:    []Pin{{Number: pin, Mode: PinInput}},
		Methods: []Method{{Name: "read", Body: "sendResponse(String(digitalRead(2)));"}},
	}
}

func TestDeclareAssignsSequentialIDs(t *testing.T) {
	reg := NewRegistry()
	var ids []int
	for n, spec := range []DeviceSpec{ledSpec(1), sensorSpec(2), ledSpec(3), sensorSpec(4)} {
		d, err := reg.Declare(spec)
		require.NoError(t, err)
		require.Equal(t, n, d.Index)
		for _, cmd := range d.Commands {
			ids = append(ids, cmd.ID)
		}
		require.Equal(t, d.Commands[0].ID, d.ID)
	}
	for n, id := range ids {
		require.Equal(t, n, id)
	}
	assert.Equal(t, len(ids), reg.NextID())
}

func TestResetDoesNotReuseIDs(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Declare(ledSpec(1))
	require.NoError(t, err)
	gen := reg.Generation()
	reg.Reset()
	assert.NotEqual(t, gen, reg.Generation())
	assert.Zero(t, reg.Len())

	d, err := reg.Declare(ledSpec(1))
	require.NoError(t, err, "pins are released by reset")
	assert.Equal(t, 2, d.ID)
	assert.Equal(t, 0, d.Index)
}

func TestDeclareErrors(t *testing.T) {
	testCases := []struct {
		name     string
		reserved []int
		excluded []int
		first    *DeviceSpec
		spec     DeviceSpec
		expected error
	}{
		{
			name:     "overlapping pin",
			first:    specPtr(ledSpec(14)),
			spec:     sensorSpec(14),
			expected: ErrDuplicatePin,
		},
		{
			name: "pin repeated in request",
			spec: DeviceSpec{
				Kind:    "rgb_led",
				Pins:    []Pin{{Number: 5, Mode: PinOutput}, {Number: 5, Mode: PinOutput}},
				Methods: []Method{{Name: "set"}},
			},
			expected: ErrDuplicatePin,
		},
		{
			name: "too few lines",
			spec: DeviceSpec{
				Kind:    "l293d",
				Pins:    []Pin{{Number: 1}, {Number: 2}, {Number: 3}},
				Methods: []Method{{Name: "stop"}},
				Lines:   6,
			},
			expected: ErrCapacity,
		},
		{
			name:     "pin outside reserved set",
			reserved: []int{2, 3},
			spec:     ledSpec(9),
			expected: ErrCapacity,
		},
		{
			name:     "excluded pin",
			excluded: []int{0, 1},
			spec:     ledSpec(1),
			expected: ErrExcludedPin,
		},
		{
			name:     "excluded pin inside reserved set",
			reserved: []int{1, 2},
			excluded: []int{1},
			spec:     ledSpec(1),
			expected: ErrExcludedPin,
		},
		{
			name:     "no methods",
			spec:     DeviceSpec{Kind: "led", Pins: []Pin{{Number: 1}}},
			expected: ErrInvalidDevice,
		},
		{
			name:     "bad kind",
			spec:     DeviceSpec{Kind: "my led", Methods: []Method{{Name: "on"}}},
			expected: ErrInvalidDevice,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry(tc.reserved...).Exclude(tc.excluded...)
			if tc.first != nil {
				_, err := reg.Declare(*tc.first)
				require.NoError(t, err)
			}
			before := reg.Descriptors()
			nextID, gen := reg.NextID(), reg.Generation()

			_, err := reg.Declare(tc.spec)
			require.Error(t, err)
			var regErr *RegistrationError
			require.True(t, errors.As(err, &regErr))
			require.True(t, errors.Is(err, tc.expected))

			require.Equal(t, before, reg.Descriptors())
			require.Equal(t, nextID, reg.NextID())
			require.Equal(t, gen, reg.Generation())
		})
	}
}

func TestDeclareRejectsMalformedFragments(t *testing.T) {
	testCases := []struct {
		name string
		spec DeviceSpec
	}{
		{"unbalanced", DeviceSpec{Kind: "x", Methods: []Method{{Name: "m", Body: "if (a) {"}}}},
		{"closing first", DeviceSpec{Kind: "x", Methods: []Method{{Name: "m", Body: "} {"}}}},
		{"marker", DeviceSpec{Kind: "x", Methods: []Method{{Name: "m", Body: markerEnd}}}},
		{"method name", DeviceSpec{Kind: "x", Methods: []Method{{Name: "turn-on"}}}},
		{"global", DeviceSpec{Kind: "x", Global: "int a = {1;", Methods: []Method{{Name: "m"}}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reg := NewRegistry()
			_, err := reg.Declare(tc.spec)
			var renderErr *RenderError
			require.True(t, errors.As(err, &renderErr), "got %v", err)
			require.Zero(t, reg.Len())
			require.Zero(t, reg.NextID())
		})
	}
}

func TestBraceDepthIgnoresLiterals(t *testing.T) {
	assert.Equal(t, 0, braceDepth(`sendResponse("{"); char c = '}'; // {`))
	assert.Equal(t, 0, braceDepth("/* { */ if (x) { y(); }"))
	assert.Equal(t, 1, braceDepth("{"))
	assert.Equal(t, -1, braceDepth("}{"))
}

func TestSiblingsAndInstances(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Declare(ledSpec(1))
	require.NoError(t, err)
	require.Equal(t, 2, reg.NextInstance("led"))
	require.Equal(t, 1, reg.NextInstance("servo_motor"))
	d, err := reg.Declare(ledSpec(2))
	require.NoError(t, err)
	require.Equal(t, 2, d.Instance)

	siblings := reg.ByKind("led")
	require.Len(t, siblings, 2)
	require.Equal(t, []int{1}, siblings[0].PinNumbers())
	require.Equal(t, []int{2}, siblings[1].PinNumbers())

	owner, ok := reg.PinOwner(2)
	require.True(t, ok)
	require.Equal(t, "led_1", owner)
}

func TestDescriptorIsImmutable(t *testing.T) {
	reg := NewRegistry()
	d, err := reg.Declare(ledSpec(1))
	require.NoError(t, err)
	d.Pins[0].Number = 42
	d.Commands[0].ID = 99
	stored := reg.Descriptors()[0]
	require.Equal(t, 1, stored.Pins[0].Number)
	require.Equal(t, 0, stored.Commands[0].ID)
}

func specPtr(s DeviceSpec) *DeviceSpec {
	return &s
}

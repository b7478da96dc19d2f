package barrier

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/nerrad567/smartpark-core/internal/hal/haltest"
)

func newActuator() (*Actuator, *haltest.FakeOutput, *haltest.FakeClock) {
	clock := haltest.NewFakeClock()
	pin := haltest.NewFakeOutput(clock)
	return NewActuator(NewSoftPWM(clock, pin, DefaultPWMConfig())), pin, clock
}

// =============================================================================
// Duty cycle mapping
// =============================================================================

func TestDutyCycle_Endpoints(t *testing.T) {
	cfg := DefaultPWMConfig()
	assert.InDelta(t, 2.5, cfg.DutyCycle(0), 1e-9)
	assert.InDelta(t, 5.0, cfg.DutyCycle(45), 1e-9)
	assert.InDelta(t, 7.5, cfg.DutyCycle(90), 1e-9)
}

func TestDutyCycle_Clamped(t *testing.T) {
	cfg := DefaultPWMConfig()
	assert.Equal(t, cfg.DutyCycle(0), cfg.DutyCycle(-30))
	assert.Equal(t, cfg.DutyCycle(90), cfg.DutyCycle(180))
}

func TestDutyCycle_MonotonicAndLinear(t *testing.T) {
	cfg := DefaultPWMConfig()
	step := cfg.DutyCycle(1) - cfg.DutyCycle(0)
	for deg := 1.0; deg <= 90; deg++ {
		diff := cfg.DutyCycle(deg) - cfg.DutyCycle(deg-1)
		assert.Greater(t, diff, 0.0)
		assert.InDelta(t, step, diff, 1e-9)
	}
}

func TestPulseWidth(t *testing.T) {
	cfg := DefaultPWMConfig()
	assert.Equal(t, 500*time.Microsecond, cfg.PulseWidth(0))
	assert.Equal(t, 1500*time.Microsecond, cfg.PulseWidth(90))
}

// =============================================================================
// SoftPWM
// =============================================================================

func TestSoftPWM_SignalShape(t *testing.T) {
	clock := haltest.NewFakeClock()
	pin := haltest.NewFakeOutput(clock)
	cfg := DefaultPWMConfig()
	s := NewSoftPWM(clock, pin, cfg)

	require.NoError(t, s.SetAngle(90))

	writes := pin.Writes()
	require.Len(t, writes, 2*cfg.Pulses+1)
	for i := 0; i < cfg.Pulses; i++ {
		rise, fall := writes[2*i], writes[2*i+1]
		assert.Equal(t, gpio.High, rise.Level)
		assert.Equal(t, gpio.Low, fall.Level)
		assert.Equal(t, cfg.PulseWidth(90), fall.At.Sub(rise.At))
	}
	assert.Equal(t, gpio.Low, pin.Last())
	assert.Equal(t, time.Duration(cfg.Pulses)*cfg.Period, clock.Elapsed())
}

func TestSoftPWM_WriteFailure(t *testing.T) {
	clock := haltest.NewFakeClock()
	pin := haltest.NewFakeOutput(clock)
	pin.Fail(errors.New("gpio gone"))

	err := NewSoftPWM(clock, pin, DefaultPWMConfig()).SetAngle(90)
	assert.ErrorIs(t, err, ErrServoWrite)
}

// =============================================================================
// Actuator
// =============================================================================

func TestActuator_StartsClosed(t *testing.T) {
	a, _, _ := newActuator()
	assert.Equal(t, Closed, a.State())
}

func TestActuator_CloseWhenClosedEmitsNothing(t *testing.T) {
	a, pin, clock := newActuator()

	require.NoError(t, a.Close())

	assert.Empty(t, pin.Writes())
	assert.Zero(t, clock.Elapsed())
	assert.Equal(t, Closed, a.State())
}

func TestActuator_OpenThenOpenAgain(t *testing.T) {
	a, pin, _ := newActuator()

	require.NoError(t, a.Open())
	assert.Equal(t, Open, a.State())
	first := len(pin.Writes())
	assert.Equal(t, 51, first)

	require.NoError(t, a.Open())
	assert.Len(t, pin.Writes(), first)
}

func TestActuator_CycleTiming(t *testing.T) {
	a, pin, clock := newActuator()

	require.NoError(t, a.Open())
	require.NoError(t, a.Close())

	assert.Equal(t, Closed, a.State())
	assert.Equal(t, time.Second, clock.Elapsed())
	assert.Equal(t, gpio.Low, pin.Last())
}

func TestActuator_FailedMoveKeepsState(t *testing.T) {
	a, pin, _ := newActuator()
	pin.Fail(errors.New("gpio gone"))

	err := a.Open()
	assert.ErrorIs(t, err, ErrServoWrite)
	assert.Equal(t, Closed, a.State())
}

func TestActuator_CleanupAlwaysDrivesClosed(t *testing.T) {
	a, pin, _ := newActuator()

	// Tracked state is already closed; cleanup still signals the arm.
	require.NoError(t, a.Cleanup())
	assert.NotEmpty(t, pin.Writes())
	assert.Equal(t, gpio.Low, pin.Last())

	require.NoError(t, a.Open())
	pin.Reset()
	require.NoError(t, a.Cleanup())
	assert.Equal(t, Closed, a.State())
	assert.Equal(t, gpio.Low, pin.Last())
}

func TestActuator_CleanupReportsFailure(t *testing.T) {
	a, pin, _ := newActuator()
	require.NoError(t, a.Open())
	pin.Fail(errors.New("gpio gone"))

	assert.Error(t, a.Cleanup())
	assert.Equal(t, Closed, a.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, OpenAngle, Open.Angle())
	assert.Equal(t, ClosedAngle, Closed.Angle())
}

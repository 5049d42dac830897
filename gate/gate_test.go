package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testGauge struct {
	value float64
}

func (tg *testGauge) Set(v float64) {
	tg.value = v
}

func testGateInitiallyOpen(t *testing.T) {
	assert := assert.New(t)

	g := New()
	assert.True(g.IsOpen())

	g.Lower()
	assert.False(g.IsOpen())

	g.Raise()
	assert.True(g.IsOpen())
}

func testGateInitiallyClosed(t *testing.T) {
	assert := assert.New(t)

	g := New(WithInitiallyClosed())
	assert.False(g.IsOpen())

	g.Raise()
	assert.True(g.IsOpen())
}

func testGateClosedGauge(t *testing.T) {
	var (
		assert = assert.New(t)
		gauge  = new(testGauge)
		g      = New(WithClosedGauge(gauge))
	)

	assert.Zero(gauge.value)

	g.Lower()
	assert.Equal(1.0, gauge.value)

	// redundant transitions do not touch the gauge
	g.Lower()
	assert.Equal(1.0, gauge.value)

	g.Raise()
	assert.Zero(gauge.value)
}

func TestGate(t *testing.T) {
	t.Run("InitiallyOpen", testGateInitiallyOpen)
	t.Run("InitiallyClosed", testGateInitiallyClosed)
	t.Run("ClosedGauge", testGateClosedGauge)
}

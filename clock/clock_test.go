package clock

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

func TestNewWithSubloop(t *testing.T) {
	c := New(config.ControlStep{Start: 2, Total: 10, Interval: 0.1, Subloop: 4})
	assert.InDelta(t, 0.025, c.DT, 1e-12)
	assert.Equal(t, int32(8), c.START_STEP)
	assert.Equal(t, int32(48), c.END_STEP)
	assert.InDelta(t, 0.2, c.T, 1e-12)
	assert.Equal(t, int32(2), c.ExternalStep())
	assert.True(t, c.NoInSubloop())

	c.Tick()
	assert.False(t, c.NoInSubloop())
	assert.InDelta(t, 0.225, c.T, 1e-12)
	assert.False(t, c.Done())
}

func TestDefaultSubloop(t *testing.T) {
	c := New(config.ControlStep{Total: 2, Interval: 0.5})
	assert.Equal(t, int32(1), c.SUBLOOP)
	c.Tick()
	c.Tick()
	assert.True(t, c.Done())
	assert.Equal(t, "00:01.000", c.String())
}

func TestNow(t *testing.T) {
	c := New(config.ControlStep{Start: 600, Total: 1, Interval: 0.1})
	res, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	assert.NoError(t, err)
	assert.InDelta(t, 60.0, res.Msg.T, 1e-9)
	assert.Equal(t, "01:00.000", c.String())
}

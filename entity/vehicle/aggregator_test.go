package vehicle

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/entity/physics"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

func TestTorqueConversion(t *testing.T) {
	centers := map[entity.BodyID]mgl64.Vec3{1: {1, 1, 1}}

	w := Aggregate([]ForceContribution{
		{Force: mgl64.Vec3{0, 10, 0}, Point: mgl64.Vec3{1, 1, 1}, Body: 1},
	}, centers)
	assert.Equal(t, mgl64.Vec3{0, 10, 0}, w[1].Force)
	assert.Equal(t, mgl64.Vec3{}, w[1].Torque)

	// 力臂沿+x，力沿+y，力矩沿+z，大小为力臂与力的乘积
	w = Aggregate([]ForceContribution{
		{Force: mgl64.Vec3{0, 10, 0}, Point: mgl64.Vec3{3, 1, 1}, Body: 1},
	}, centers)
	assert.InDelta(t, 20.0, w[1].Torque.Z(), 1e-12)
	assert.InDelta(t, 20.0, w[1].Torque.Len(), 1e-12)
}

func TestAggregateSumsPerBody(t *testing.T) {
	centers := map[entity.BodyID]mgl64.Vec3{1: {}, 2: {10, 0, 0}}
	car := []ForceContribution{
		{Force: mgl64.Vec3{1, 0, 0}, Point: mgl64.Vec3{0, 0, 1}, Body: 1},
		{Force: mgl64.Vec3{0, 2, 0}, Point: mgl64.Vec3{1, 0, 0}, Body: 1},
	}
	trailer := []ForceContribution{
		{Force: mgl64.Vec3{0, 0, 5}, Point: mgl64.Vec3{10, 0, 0}, Body: 2},
	}
	orphan := ForceContribution{Force: mgl64.Vec3{100, 0, 0}, Body: 3}
	all := append(append(append([]ForceContribution{}, car...), trailer...), orphan)

	w := Aggregate(all, centers)
	require.Len(t, w, 2)
	assert.Equal(t, Aggregate(car, centers)[1], w[1])
	assert.Equal(t, Aggregate(trailer, centers)[2], w[2])
	assert.Equal(t, mgl64.Vec3{1, 2, 0}, w[1].Force)
	assert.Equal(t, mgl64.Vec3{0, 0, 5}, w[2].Force)
	assert.Equal(t, mgl64.Vec3{}, w[2].Torque)
}

func TestApplyWrenchesResetsAbsentBodies(t *testing.T) {
	world := physics.New(9.81)
	a := world.AddBody(entity.BodyDesc{HalfExtents: mgl64.Vec3{1, 1, 1}})
	b := world.AddBody(entity.BodyDesc{HalfExtents: mgl64.Vec3{1, 1, 1}})
	world.SetExternalForce(a, mgl64.Vec3{5, 5, 5}, mgl64.Vec3{1, 1, 1})
	world.SetExternalForce(b, mgl64.Vec3{5, 5, 5}, mgl64.Vec3{1, 1, 1})

	applyWrenches(world, []entity.BodyID{a, b}, map[entity.BodyID]Wrench{
		b: {Force: mgl64.Vec3{0, 1, 0}},
	})
	f, tq, ok := world.ExternalForce(a)
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{}, f)
	assert.Equal(t, mgl64.Vec3{}, tq)
	f, tq, _ = world.ExternalForce(b)
	assert.Equal(t, mgl64.Vec3{0, 1, 0}, f)
	assert.Equal(t, mgl64.Vec3{}, tq)
}

func TestBufferDrainOnce(t *testing.T) {
	var buf Buffer
	buf.Add(ForceContribution{Body: 1})
	buf.Add(ForceContribution{Body: 2})
	assert.Len(t, buf.Drain(), 2)
	assert.Empty(t, buf.Drain())
	assert.Zero(t, buf.Len())
}

func TestPower(t *testing.T) {
	const maxForce = 100.0
	assert.Equal(t, maxForce, Power(0.4, maxForce))
	assert.InDelta(t, Power(0.4-1e-9, maxForce), Power(0.4, maxForce), 1e-6)
	assert.InDelta(t, 52.28787452803376, Power(0, maxForce), 1e-9)
	assert.InDelta(t, Power(0.698, maxForce), Power(0.698+1e-9, maxForce), 0.1)
	assert.InDelta(t, 0.6*maxForce, Power(1, maxForce), 1e-9)
	assert.Equal(t, 0.5*maxForce, Power(-0.1, maxForce))
	assert.Equal(t, 0.0, Power(1.01, maxForce))
	assert.Equal(t, 0.0, Power(speedRatio(3, 0), maxForce))

	for r := 0.0; r <= 1.2; r += 0.01 {
		p := Power(r, maxForce)
		assert.GreaterOrEqual(t, p, 0.0, "r=%v", r)
		assert.LessOrEqual(t, p, maxForce, "r=%v", r)
	}
}

func TestIntentValues(t *testing.T) {
	assert.Equal(t, 1.0, Intent{Keys: Keys{Accelerate: true}}.ThrottleValue())
	assert.Equal(t, -1.0, Intent{Keys: Keys{Brake: true}}.ThrottleValue())
	assert.Equal(t, 0.0, Intent{Keys: Keys{Accelerate: true, Brake: true}}.ThrottleValue())
	assert.Equal(t, -0.5, Intent{Keys: Keys{Accelerate: true}, Throttle: -0.5}.ThrottleValue())
	assert.Equal(t, 1.0, Intent{Throttle: 3}.ThrottleValue())

	assert.Equal(t, 1.0, Intent{Keys: Keys{SteerLeft: true}}.SteerValue())
	assert.Equal(t, -1.0, Intent{Keys: Keys{SteerRight: true}}.SteerValue())
	assert.Equal(t, 0.25, Intent{Keys: Keys{SteerRight: true}, Steer: 0.25}.SteerValue())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(map[string]config.VehicleConfig{
		"Truck": {Height: 1, Width: 1, Length: 4, SpringOffset: 1.5, Authority: true},
	})
	assert.Equal(t, []string{CarPreset, TrailerPreset, "Truck"}, r.Names())

	truck, err := r.Lookup("Truck")
	require.NoError(t, err)
	assert.Equal(t, "Truck", truck.Name)
	assert.Equal(t, 1.0, truck.Density)
	assert.Equal(t, defaultGripStrength, truck.GripStrength)

	car, err := r.Lookup(CarPreset)
	require.NoError(t, err)
	car.MaxSpeed = 1
	again, _ := r.Lookup(CarPreset)
	assert.Equal(t, 50.0, again.MaxSpeed)

	_, err = r.Lookup("Boat")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

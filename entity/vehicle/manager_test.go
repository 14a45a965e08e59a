package vehicle

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/carsim-go/clock"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/entity/physics"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

// 车辆静止时车身中心的大致高度
const carRestHeight = 1.85

type testContext struct {
	clock *clock.Clock
	world *physics.World
	rc    *config.RuntimeConfig
	vm    *VehicleManager
}

func (c *testContext) Clock() *clock.Clock                    { return c.clock }
func (c *testContext) World() entity.IPhysicsWorld            { return c.world }
func (c *testContext) VehicleManager() entity.IVehicleManager { return c.vm }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig   { return c.rc }

func newTestContext(t *testing.T, c config.Config) *testContext {
	t.Helper()
	if c.Control.Step.Total == 0 {
		c.Control.Step.Total = 100000
	}
	rc := config.NewRuntimeConfig(c)
	ctx := &testContext{
		clock: clock.New(rc.C.Step),
		world: physics.New(rc.C.Physics.Gravity),
		rc:    rc,
	}
	ground := rc.W.GroundHeight
	ctx.world.AddStaticBox(mgl64.Vec3{0, -ground, 0}, mgl64.Vec3{rc.W.GroundSize, ground, rc.W.GroundSize})
	ctx.vm = NewManager(ctx)
	ctx.vm.Init(c.Presets, c.Vehicles)
	return ctx
}

// step 按任务循环的顺序推进一步
func (c *testContext) step() {
	c.clock.Tick()
	c.vm.Prepare()
	c.vm.Update(c.clock.DT)
	c.world.Step(c.clock.DT)
}

func (c *testContext) run(seconds float64) {
	for range int(seconds / c.clock.DT) {
		c.step()
	}
}

func (c *testContext) byName(t *testing.T, name string) *Vehicle {
	t.Helper()
	v, ok := c.vm.byName[name]
	require.True(t, ok, "vehicle %s", name)
	return v
}

func (c *testContext) body(t *testing.T, v *Vehicle) entity.BodyState {
	t.Helper()
	s, ok := c.world.Body(v.ID())
	require.True(t, ok)
	return s
}

func controllerID(id int32) *int32 {
	return &id
}

func carSpawn(name string, x float64, controller *int32) config.SpawnConfig {
	return config.SpawnConfig{
		Name:       name,
		Preset:     CarPreset,
		Position:   config.Point{X: x, Y: carRestHeight},
		Controller: controller,
	}
}

// trailerSpawn 与牵引车挂接点重合的挂车生成位置
func trailerSpawn(name string, tractor config.SpawnConfig) config.SpawnConfig {
	presets := DefaultPresets()
	car, trailer := presets[CarPreset], presets[TrailerPreset]
	rot := mgl64.QuatRotate(tractor.Yaw, axisUp)
	pos := tractor.Position.Vec3().
		Add(rot.Rotate(car.AnchorPoint.Vec3())).
		Sub(rot.Rotate(trailer.AnchorPoint.Vec3()))
	return config.SpawnConfig{
		Name:     name,
		Preset:   TrailerPreset,
		Position: config.PointOf(pos),
		Yaw:      tractor.Yaw,
		TowedBy:  tractor.Name,
	}
}

func TestInitSpawnsVehiclesAndTires(t *testing.T) {
	car := carSpawn("car", 0, controllerID(0))
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{car, trailerSpawn("trailer", car)},
	})
	vm := ctx.vm
	require.Len(t, vm.Vehicles(), 2)
	assert.Equal(t, 8, vm.tires.Len())

	c := ctx.byName(t, "car")
	tr := ctx.byName(t, "trailer")
	assert.True(t, c.Authority())
	assert.False(t, tr.Authority())
	assert.True(t, tr.Drivable())
	assert.Equal(t, c, tr.tractor)
	assert.Equal(t, []*Vehicle{tr}, c.towing)

	front, engine := 0, 0
	for _, h := range c.tires {
		tire, ok := vm.tires.Get(h)
		require.True(t, ok)
		assert.Equal(t, c.ID(), tire.Owner())
		if tire.Location == Front {
			front++
		}
		if tire.ConnectedToEngine {
			engine++
		}
	}
	assert.Equal(t, 2, front)
	assert.Equal(t, 2, engine)

	got, err := vm.GetOrError(c.ID())
	require.NoError(t, err)
	assert.Equal(t, "car", got.Name())
	_, err = vm.GetOrError(999)
	assert.ErrorIs(t, err, ErrNoBody)
	assert.Panics(t, func() { vm.Get(999) })
}

func TestInitUnknownPresetPanics(t *testing.T) {
	assert.Panics(t, func() {
		newTestContext(t, config.Config{
			Vehicles: []config.SpawnConfig{{Name: "x", Preset: "Boat"}},
		})
	})
}

func TestCarSettlesOnSuspension(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, nil)},
	})
	ctx.run(8)
	s := ctx.body(t, ctx.byName(t, "car"))
	assert.InDelta(t, carRestHeight, s.Position.Y(), 0.25)
	assert.Less(t, s.LinVel.Len(), 0.1)

	suspensionCount := 0
	for _, f := range ctx.vm.LastForces() {
		if f.Kind == ForceSuspension {
			suspensionCount++
			assert.Greater(t, f.Force.Y(), 0.0)
		}
	}
	assert.Equal(t, 4, suspensionCount)
}

func TestScriptedDriveAndSteer(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Control: config.Control{Script: []config.ScriptEntry{
			{Start: 0, End: 2, Throttle: 0.5},
			{Start: 2, End: 4, Throttle: 0.3, SteerLeft: true},
		}},
		World:    config.World{GroundSize: 1000},
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, controllerID(0))},
	})
	v := ctx.byName(t, "car")

	ctx.run(2)
	s := ctx.body(t, v)
	assert.Greater(t, s.LinVel.X(), 3.0)
	assert.InDelta(t, 0.0, s.Position.Z(), 0.5)

	ctx.run(2)
	s = ctx.body(t, v)
	heading := s.Rotation.Rotate(axisForward)
	assert.Less(t, heading.Z(), 0.0, "steering left turns the nose toward -z")

	// 脚本结束后只剩滚动摩擦
	speed := s.LinVel.Len()
	ctx.run(1)
	assert.Less(t, ctx.body(t, v).LinVel.Len(), speed)
}

func TestAirborneVehicleGetsZeroForce(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, controllerID(0))},
	})
	v := ctx.byName(t, "car")
	ctx.vm.SetIntent(entity.KeyboardController, Intent{Keys: Keys{Accelerate: true, SteerLeft: true}})

	ctx.step()
	f, _, _ := ctx.world.ExternalForce(v.ID())
	assert.NotEqual(t, mgl64.Vec3{}, f)

	ctx.world.ResetBody(v.ID(), mgl64.Vec3{0, 50, 0}, mgl64.QuatIdent())
	ctx.step()
	assert.Empty(t, ctx.vm.LastForces())
	f, tq, ok := ctx.world.ExternalForce(v.ID())
	require.True(t, ok)
	assert.Equal(t, mgl64.Vec3{}, f)
	assert.Equal(t, mgl64.Vec3{}, tq)
}

func TestTrailerFollowsTractor(t *testing.T) {
	car := carSpawn("car", 0, controllerID(0))
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{car, trailerSpawn("trailer", car)},
	})
	ctx.vm.SetIntent(entity.KeyboardController, Intent{Keys: Keys{Accelerate: true}})
	ctx.run(2)

	tr := ctx.byName(t, "trailer")
	forces := ctx.vm.LastForces()
	require.NotEmpty(t, forces)
	for _, f := range forces {
		if f.Body == tr.ID() {
			assert.NotEqual(t, ForceDrive, f.Kind, "trailer never drives")
		}
	}

	cs := ctx.body(t, ctx.byName(t, "car"))
	ts := ctx.body(t, tr)
	assert.Greater(t, cs.LinVel.X(), 1.0)
	assert.Greater(t, ts.LinVel.X(), 1.0)
	assert.Less(t, ts.Position.X(), cs.Position.X())
}

func TestExternalForceMatchesOwnContributions(t *testing.T) {
	car := carSpawn("car", 0, controllerID(0))
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{car, trailerSpawn("trailer", car)},
	})
	ctx.vm.SetIntent(entity.KeyboardController, Intent{Keys: Keys{Accelerate: true}})
	ctx.run(1)

	// 多走一步但不积分，车身状态与Update读到的一致
	ctx.clock.Tick()
	ctx.vm.Prepare()
	ctx.vm.Update(ctx.clock.DT)

	forces := ctx.vm.LastForces()
	for _, v := range ctx.vm.Vehicles() {
		s := ctx.body(t, v)
		own := make([]ForceContribution, 0)
		for _, f := range forces {
			if f.Body == v.ID() {
				own = append(own, f)
			}
		}
		want := Aggregate(own, map[entity.BodyID]mgl64.Vec3{v.ID(): s.Position})[v.ID()]
		f, tq, ok := ctx.world.ExternalForce(v.ID())
		require.True(t, ok)
		for i := range 3 {
			assert.InDelta(t, want.Force[i], f[i], 1e-9, "%v force", v)
			assert.InDelta(t, want.Torque[i], tq[i], 1e-9, "%v torque", v)
		}
	}
}

func TestDespawnOrphansTires(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, nil), carSpawn("other", 10, nil)},
	})
	v := ctx.byName(t, "car")
	require.NoError(t, ctx.vm.Despawn(v.ID()))
	assert.ErrorIs(t, ctx.vm.Despawn(999), ErrNoBody)

	ctx.vm.Prepare()
	_, err := ctx.vm.GetOrError(v.ID())
	assert.ErrorIs(t, err, ErrNoBody)
	_, ok := ctx.world.Body(v.ID())
	assert.False(t, ok)
	// 孤立轮胎在下一次查找失败前仍留在表中
	assert.Equal(t, 8, ctx.vm.tires.Len())

	ctx.vm.Update(ctx.clock.DT)
	for _, f := range ctx.vm.LastForces() {
		assert.NotEqual(t, v.ID(), f.Body)
	}
	ctx.vm.Prepare()
	assert.Equal(t, 4, ctx.vm.tires.Len())
	for _, h := range v.tires {
		_, ok := ctx.vm.tires.Get(h)
		assert.False(t, ok)
	}
}

func TestGamepadConnectDisconnect(t *testing.T) {
	ctx := newTestContext(t, config.Config{})
	vm := ctx.vm
	require.NoError(t, vm.ConnectGamepad(1, "", nil))
	assert.Error(t, vm.ConnectGamepad(1, "", nil))
	assert.ErrorIs(t, vm.ConnectGamepad(2, "Boat", nil), ErrUnknownPreset)

	vm.Prepare()
	require.Len(t, vm.Vehicles(), 1)
	v := vm.Vehicles()[0]
	c, ok := v.Controller()
	assert.True(t, ok)
	assert.Equal(t, entity.ControllerID(1), c)
	assert.Equal(t, CarPreset, v.Preset())
	assert.Equal(t, 4, vm.tires.Len())

	vm.SetIntent(1, Intent{Throttle: 0.5})
	vm.Update(ctx.clock.DT)
	assert.Equal(t, 0.5, v.Intent().ThrottleValue())

	assert.Equal(t, 1, vm.DisconnectGamepad(1))
	vm.Prepare()
	assert.Empty(t, vm.Vehicles())
	_, has := vm.intents[1]
	assert.False(t, has)
}

func TestIntentRequiresSingleton(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{
			carSpawn("a", 0, controllerID(0)),
			carSpawn("b", 10, controllerID(0)),
			carSpawn("c", 20, controllerID(3)),
		},
	})
	ctx.vm.SetIntent(0, Intent{Keys: Keys{Accelerate: true}})
	ctx.vm.SetIntent(3, Intent{Keys: Keys{Brake: true}})
	ctx.vm.SetIntent(7, Intent{Keys: Keys{Brake: true}})
	ctx.step()
	assert.Equal(t, Intent{}, ctx.byName(t, "a").Intent())
	assert.Equal(t, Intent{}, ctx.byName(t, "b").Intent())
	assert.Equal(t, -1.0, ctx.byName(t, "c").Intent().ThrottleValue())
}

func TestResetRestoresSpawnPose(t *testing.T) {
	car := carSpawn("car", 0, controllerID(0))
	car.Yaw = 0.5
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{car, trailerSpawn("trailer", car)},
	})
	v := ctx.byName(t, "car")
	tr := ctx.byName(t, "trailer")
	ctx.vm.SetIntent(0, Intent{Keys: Keys{Accelerate: true, SteerLeft: true}})
	ctx.run(1)
	assert.NotEqual(t, v.spawnPosition, ctx.body(t, v).Position)

	ctx.vm.SetIntent(0, Intent{Keys: Keys{Reset: true}})
	ctx.clock.Tick()
	ctx.vm.Prepare()
	ctx.vm.Update(ctx.clock.DT)
	s := ctx.body(t, v)
	assert.Equal(t, v.spawnPosition, s.Position)
	assert.Equal(t, mgl64.Vec3{}, s.LinVel)
	assert.Equal(t, tr.spawnPosition, ctx.body(t, tr).Position)
	for _, h := range v.tires {
		tire, _ := ctx.vm.tires.Get(h)
		assert.Equal(t, 0.0, tire.Steer())
	}
}

func TestSetConfigResize(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, nil)},
	})
	v := ctx.byName(t, "car")
	before := ctx.body(t, v).Mass

	height := 0.5
	maxSpeed := 80.0
	c, err := ctx.vm.SetConfig(v.ID(), ConfigPatch{Height: &height, MaxSpeed: &maxSpeed})
	require.NoError(t, err)
	assert.Equal(t, 80.0, c.MaxSpeed)
	assert.Equal(t, 80.0, v.Config().MaxSpeed)
	// 预设表不受影响
	preset, _ := ctx.vm.Registry().Lookup(CarPreset)
	assert.Equal(t, 50.0, preset.MaxSpeed)

	ctx.vm.Prepare()
	assert.Less(t, ctx.body(t, v).Mass, before)
	for _, h := range v.tires {
		tire, _ := ctx.vm.tires.Get(h)
		assert.Equal(t, -0.5, tire.Offset().Y())
	}

	bad := -1.0
	_, err = ctx.vm.SetConfig(v.ID(), ConfigPatch{Shock: &bad})
	assert.Error(t, err)
	assert.Equal(t, 45.0, v.Config().Shock)
	_, err = ctx.vm.SetConfig(999, ConfigPatch{})
	assert.ErrorIs(t, err, ErrNoBody)
}

func TestParkingSpot(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		World: config.World{ParkingSpot: &config.Zone{
			Center:      config.Point{X: 20, Y: 1, Z: 0},
			HalfExtents: config.Point{X: 4, Y: 1, Z: 3},
		}},
		Vehicles: []config.SpawnConfig{carSpawn("in", 20, nil), carSpawn("out", -20, nil)},
	})
	assert.True(t, ctx.byName(t, "in").InParkingSpot())
	assert.False(t, ctx.byName(t, "out").InParkingSpot())

	in := ctx.byName(t, "in")
	ctx.world.ResetBody(in.ID(), mgl64.Vec3{0, carRestHeight, 0}, mgl64.QuatIdent())
	ctx.vm.Prepare()
	assert.False(t, in.InParkingSpot())
}

func TestTractionBandBeyondRestLength(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, controllerID(0))},
	})
	v := ctx.byName(t, "car")
	c := v.Config()

	// 车身抬高到轮胎离地distance处，沿x前进并带侧向速度
	produce := func(distance float64) ([]tirePose, []ForceContribution) {
		ctx.world.ResetBody(v.ID(), mgl64.Vec3{0, c.Height + distance, 0}, mgl64.QuatIdent())
		s := ctx.body(t, v)
		s.LinVel = mgl64.Vec3{5, 0, 2}
		poses := ctx.vm.tirePoses(map[entity.BodyID]entity.BodyState{v.ID(): s})
		require.Len(t, poses, 4)
		return poses, produceAll(poses, 1)
	}

	band := (c.SpringOffset + c.TractionThreshold()) / 2
	poses, contribs := produce(band)
	for _, p := range poses {
		assert.True(t, p.grounded)
		assert.InDelta(t, band, p.hit.Distance, 1e-9)
	}
	kinds := make(map[ForceKind]int)
	for _, f := range contribs {
		kinds[f.Kind]++
	}
	assert.Zero(t, kinds[ForceSuspension])
	assert.Equal(t, 2, kinds[ForceDrive])
	assert.Equal(t, 4, kinds[ForceCornering])

	poses, contribs = produce(c.TractionThreshold() * 1.05)
	for _, p := range poses {
		assert.False(t, p.grounded)
	}
	assert.Empty(t, contribs)
}

func TestInitRejectsTowCycle(t *testing.T) {
	self := carSpawn("car", 0, nil)
	self.TowedBy = "car"
	assert.Panics(t, func() {
		newTestContext(t, config.Config{Vehicles: []config.SpawnConfig{self}})
	})

	a, b := carSpawn("a", 0, nil), carSpawn("b", 10, nil)
	a.TowedBy, b.TowedBy = "b", "a"
	assert.Panics(t, func() {
		newTestContext(t, config.Config{Vehicles: []config.SpawnConfig{a, b}})
	})

	assert.NoError(t, checkTowChain("c", map[string]string{"c": "b", "b": "a", "a": ""}))
	assert.ErrorIs(t, checkTowChain("c", map[string]string{"c": "b", "b": "a", "a": "b"}), ErrTowCycle)
}

func TestCoupleRefusesLoops(t *testing.T) {
	car := carSpawn("car", 0, controllerID(0))
	ctx := newTestContext(t, config.Config{
		Vehicles: []config.SpawnConfig{car, trailerSpawn("trailer", car), carSpawn("other", 20, nil)},
	})
	c := ctx.byName(t, "car")
	tr := ctx.byName(t, "trailer")
	other := ctx.byName(t, "other")

	assert.ErrorIs(t, ctx.vm.couple(c, c), ErrTowCycle)
	assert.ErrorIs(t, ctx.vm.couple(tr, c), ErrTowCycle)
	assert.Error(t, ctx.vm.couple(other, tr))
	assert.Equal(t, c, tr.tractor)
	assert.Equal(t, []*Vehicle{tr}, c.towing)
	assert.Empty(t, other.towing)

	// 运行时生成的车辆挂到自己名下时不建立关节
	loopSpawn := carSpawn("loop", -20, nil)
	loopSpawn.TowedBy = "loop"
	require.NoError(t, ctx.vm.Spawn(loopSpawn))
	ctx.vm.Prepare()
	loop := ctx.byName(t, "loop")
	assert.Nil(t, loop.tractor)
	assert.Empty(t, loop.towing)

	ctx.vm.SetIntent(0, Intent{Keys: Keys{Reset: true}})
	ctx.clock.Tick()
	ctx.vm.Prepare()
	ctx.vm.Update(ctx.clock.DT)
	assert.Equal(t, c.spawnPosition, ctx.body(t, c).Position)
	assert.Equal(t, tr.spawnPosition, ctx.body(t, tr).Position)
}

func TestGamepadRequiresAuthorityPreset(t *testing.T) {
	ctx := newTestContext(t, config.Config{})
	assert.ErrorIs(t, ctx.vm.ConnectGamepad(4, TrailerPreset, nil), ErrNoAuthority)
	ctx.vm.Prepare()
	assert.Empty(t, ctx.vm.Vehicles())
}

func TestZeroGripFallsBackToDefault(t *testing.T) {
	ctx := newTestContext(t, config.Config{
		Presets: map[string]config.VehicleConfig{
			"Kart": {Height: 0.3, Width: 0.6, Length: 1, SpringOffset: 0.5, Authority: true},
		},
		Vehicles: []config.SpawnConfig{carSpawn("car", 0, nil)},
	})
	kart, err := ctx.vm.Registry().Lookup("Kart")
	require.NoError(t, err)
	assert.Equal(t, defaultGripStrength, kart.GripStrength)
	assert.Equal(t, float64(defaultCorneringGain), kart.CorneringGain)

	v := ctx.byName(t, "car")
	grip, gain := 0.2, 3.0
	_, err = ctx.vm.SetConfig(v.ID(), ConfigPatch{GripStrength: &grip, CorneringGain: &gain})
	require.NoError(t, err)
	assert.Equal(t, 0.2, v.Config().GripStrength)

	zero := 0.0
	c, err := ctx.vm.SetConfig(v.ID(), ConfigPatch{GripStrength: &zero, CorneringGain: &zero})
	require.NoError(t, err)
	assert.Equal(t, kart.GripStrength, c.GripStrength)
	assert.Equal(t, kart.CorneringGain, c.CorneringGain)
}

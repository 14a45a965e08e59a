package vehicle

import (
	"fmt"
	"slices"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"github.com/tsinghua-fib-lab/carsim-go/utils/container"
)

// gamepadSpawnPosition 手柄接入时默认的生成位置
var gamepadSpawnPosition = config.Point{X: 0, Y: 3, Z: 0}

// VehicleManager 车辆管理器
// 功能：管理所有车辆与轮胎，每步完成意图路由、转向、受力计算与合力写入
// 说明：车辆增删与车身尺寸修改都延迟到Prepare执行；RPC与仿真步通过mtx串行
type VehicleManager struct {
	ctx      entity.ITaskContext
	registry *Registry

	vehicles map[entity.BodyID]*Vehicle
	byName   map[string]*Vehicle
	order    []entity.BodyID // 按生成顺序

	// 轮胎所属关系表：句柄 -> 轮胎（轮胎记录所属车身ID）
	tires *container.Arena[*Tire]

	spawnQueue   []config.SpawnConfig
	despawnQueue []entity.BodyID
	resizeQueue  []entity.BodyID
	nextAutoName int

	intents map[entity.ControllerID]Intent

	buffer     Buffer
	snapshot   map[entity.BodyID]entity.BodyState // 最近一步的车身状态
	lastForces []ForceContribution                // 最近一步合力计算前的全部作用力

	mtx sync.Mutex
}

// NewManager 创建车辆管理器
// 参数：ctx-任务上下文
func NewManager(ctx entity.ITaskContext) *VehicleManager {
	return &VehicleManager{
		ctx:          ctx,
		registry:     NewRegistry(nil),
		vehicles:     make(map[entity.BodyID]*Vehicle),
		byName:       make(map[string]*Vehicle),
		order:        make([]entity.BodyID, 0),
		tires:        container.NewArena[*Tire](),
		spawnQueue:   make([]config.SpawnConfig, 0),
		despawnQueue: make([]entity.BodyID, 0),
		resizeQueue:  make([]entity.BodyID, 0),
		intents:      make(map[entity.ControllerID]Intent),
		snapshot:     make(map[entity.BodyID]entity.BodyState),
	}
}

// Init 初始化
// 功能：构造预设表并生成初始车辆
// 参数：presets-外部预设（覆盖同名内置预设），spawns-初始车辆
// 说明：未知预设或无法解析的牵引关系属于配置错误，直接panic
func (m *VehicleManager) Init(presets map[string]config.VehicleConfig, spawns []config.SpawnConfig) {
	m.registry = NewRegistry(presets)
	towedBy := lo.SliceToMap(spawns, func(s config.SpawnConfig) (string, string) { return s.Name, s.TowedBy })
	for _, s := range spawns {
		if _, err := m.registry.Lookup(s.Preset); err != nil {
			log.Panicf("spawn %s: %v", s.Name, err)
		}
		if s.TowedBy != "" && !lo.ContainsBy(spawns, func(o config.SpawnConfig) bool { return o.Name == s.TowedBy }) {
			log.Panicf("spawn %s: tractor %q not found", s.Name, s.TowedBy)
		}
		if err := checkTowChain(s.Name, towedBy); err != nil {
			log.Panicf("spawn %s: %v", s.Name, err)
		}
	}
	m.spawnQueue = append(m.spawnQueue, spawns...)
	m.Prepare()
	log.Infof("vehicle manager init: presets=%v vehicles=%d", m.registry.Names(), len(m.vehicles))
}

// Registry 车型预设表
func (m *VehicleManager) Registry() *Registry {
	return m.registry
}

// Get 输入车身ID，查找车辆，如果不存在则panic
func (m *VehicleManager) Get(id entity.BodyID) entity.IVehicle {
	if v, ok := m.vehicles[id]; !ok {
		log.Panicf("no id %v in vehicle data", id)
		return nil
	} else {
		return v
	}
}

// GetOrError 输入车身ID，查找车辆，如果不存在则返回error
func (m *VehicleManager) GetOrError(id entity.BodyID) (entity.IVehicle, error) {
	if v, ok := m.vehicles[id]; !ok {
		return nil, fmt.Errorf("vehicle %v: %w", id, ErrNoBody)
	} else {
		return v, nil
	}
}

// Vehicles 所有车辆（按生成顺序）
func (m *VehicleManager) Vehicles() []*Vehicle {
	return lo.Map(m.order, func(id entity.BodyID, _ int) *Vehicle { return m.vehicles[id] })
}

// Spawn 请求生成车辆（下一次Prepare时生效）
// 返回：预设不存在时返回错误
func (m *VehicleManager) Spawn(spawn config.SpawnConfig) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.enqueueSpawn(spawn)
}

func (m *VehicleManager) enqueueSpawn(spawn config.SpawnConfig) error {
	if _, err := m.registry.Lookup(spawn.Preset); err != nil {
		return err
	}
	m.spawnQueue = append(m.spawnQueue, spawn)
	return nil
}

// Despawn 请求删除车辆（下一次Prepare时生效）
func (m *VehicleManager) Despawn(id entity.BodyID) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return fmt.Errorf("despawn %v: %w", id, ErrNoBody)
	}
	m.despawnQueue = append(m.despawnQueue, id)
	return nil
}

// ConnectGamepad 手柄接入，为其生成一辆车
// 参数：controller-控制器ID，preset-车型（为空则为Car），position-生成位置（为nil则用默认位置）
func (m *VehicleManager) ConnectGamepad(controller entity.ControllerID, preset string, position *config.Point) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	bound := lo.ContainsBy(m.Vehicles(), func(v *Vehicle) bool {
		c, ok := v.Controller()
		return ok && c == controller
	}) || lo.ContainsBy(m.spawnQueue, func(s config.SpawnConfig) bool {
		return s.Controller != nil && entity.ControllerID(*s.Controller) == controller
	})
	if bound {
		return fmt.Errorf("controller %d already has a vehicle", controller)
	}
	if preset == "" {
		preset = CarPreset
	}
	cfg, err := m.registry.Lookup(preset)
	if err != nil {
		return err
	}
	if !cfg.Authority {
		return fmt.Errorf("gamepad %d with preset %q: %w", controller, preset, ErrNoAuthority)
	}
	id := int32(controller)
	spawn := config.SpawnConfig{
		Name:       fmt.Sprintf("gamepad-%d", controller),
		Preset:     preset,
		Position:   lo.FromPtrOr(position, gamepadSpawnPosition),
		Controller: &id,
	}
	return m.enqueueSpawn(spawn)
}

// checkTowChain 沿牵引关系向上查找，牵引链回到已经过的车辆时返回ErrTowCycle
func checkTowChain(name string, towedBy map[string]string) error {
	seen := map[string]bool{name: true}
	for cur := towedBy[name]; cur != ""; cur = towedBy[cur] {
		if seen[cur] {
			return fmt.Errorf("%w: %s", ErrTowCycle, cur)
		}
		seen[cur] = true
	}
	return nil
}

// DisconnectGamepad 手柄断开，删除其车辆与轮胎
// 返回：删除的车辆数
func (m *VehicleManager) DisconnectGamepad(controller entity.ControllerID) int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	delete(m.intents, controller)
	n := 0
	for _, v := range m.Vehicles() {
		if c, ok := v.Controller(); ok && c == controller {
			m.despawnQueue = append(m.despawnQueue, v.id)
			n++
		}
	}
	return n
}

// SetIntent 设置控制器的驾驶意图，保持到下一次设置
func (m *VehicleManager) SetIntent(controller entity.ControllerID, intent Intent) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.intents[controller] = intent
}

// SetConfig 实时调参
// 说明：参数立即生效；车身尺寸变化时碰撞盒与轮胎布局在下一次Prepare时重建
func (m *VehicleManager) SetConfig(id entity.BodyID, patch ConfigPatch) (config.VehicleConfig, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return config.VehicleConfig{}, fmt.Errorf("vehicle %v: %w", id, ErrNoBody)
	}
	resized, err := patch.apply(&v.cfg)
	if err != nil {
		return v.cfg, err
	}
	if resized {
		m.resizeQueue = append(m.resizeQueue, id)
	}
	return v.cfg, nil
}

// Prepare 准备阶段
// 算法说明：
// 1. 删除车辆：移除车身刚体（关节随之移除），轮胎留在所属关系表中，下一步查找失败后清理
// 2. 生成车辆并建立牵引关节
// 3. 重建尺寸变化的车身
// 4. 轮胎表增量生效
// 5. 停车位检测
func (m *VehicleManager) Prepare() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, id := range m.despawnQueue {
		m.remove(id)
	}
	m.despawnQueue = m.despawnQueue[:0]

	towed := make(map[*Vehicle]string)
	for _, s := range m.spawnQueue {
		v, err := m.add(s)
		if err != nil {
			log.Errorf("spawn %s: %v", s.Name, err)
			continue
		}
		if s.TowedBy != "" {
			towed[v] = s.TowedBy
		}
	}
	for _, v := range m.Vehicles() {
		if name, ok := towed[v]; ok {
			m.coupleByName(v, name)
		}
	}
	m.spawnQueue = m.spawnQueue[:0]

	for _, id := range lo.Uniq(m.resizeQueue) {
		if v, ok := m.vehicles[id]; ok {
			m.relayout(v)
		}
	}
	m.resizeQueue = m.resizeQueue[:0]

	m.tires.Prepare()
	m.detectParking()
	log.Debug("VehicleManager: prepare done")
}

// add 生成车辆：创建车身刚体与轮胎
func (m *VehicleManager) add(spawn config.SpawnConfig) (*Vehicle, error) {
	cfg, err := m.registry.Lookup(spawn.Preset)
	if err != nil {
		return nil, err
	}
	name := spawn.Name
	if name == "" || m.byName[name] != nil {
		m.nextAutoName++
		name = fmt.Sprintf("%s-%d", spawn.Preset, m.nextAutoName)
	}
	position, rotation := spawnPose(spawn)
	world := m.ctx.World()
	id := world.AddBody(entity.BodyDesc{
		Position:    position,
		Rotation:    rotation,
		HalfExtents: cfg.HalfExtents(),
		Density:     cfg.Density,
		Friction:    m.ctx.RuntimeConfig().C.Physics.FrictionCoefficient,
	})
	v := &Vehicle{
		id:            id,
		name:          name,
		preset:        spawn.Preset,
		cfg:           cfg,
		spawnPosition: position,
		spawnRotation: rotation,
	}
	if spawn.Controller != nil {
		v.controller = entity.ControllerID(*spawn.Controller)
		v.hasController = true
	}
	for _, slot := range tireLayout(&v.cfg) {
		t := &Tire{
			owner:             id,
			offset:            slot.offset,
			Location:          slot.location,
			ConnectedToEngine: slot.engine,
		}
		t.handle = m.tires.Add(t)
		v.tires = append(v.tires, t.handle)
	}
	m.vehicles[id] = v
	m.byName[name] = v
	m.order = append(m.order, id)
	log.Infof("spawn %v with %d tires", v, len(v.tires))
	return v, nil
}

// remove 删除车辆，解除牵引关系
func (m *VehicleManager) remove(id entity.BodyID) {
	v, ok := m.vehicles[id]
	if !ok {
		return
	}
	if v.tractor != nil {
		v.tractor.towing = slices.DeleteFunc(v.tractor.towing, func(o *Vehicle) bool { return o == v })
	}
	for _, o := range v.towing {
		o.tractor = nil
	}
	m.ctx.World().RemoveBody(id)
	delete(m.vehicles, id)
	delete(m.byName, v.name)
	delete(m.snapshot, id)
	m.order = slices.DeleteFunc(m.order, func(x entity.BodyID) bool { return x == id })
	log.Infof("despawn %v", v)
}

// coupleByName 以球铰把挂车连接到牵引车
func (m *VehicleManager) coupleByName(trailer *Vehicle, tractorName string) {
	tractor, ok := m.byName[tractorName]
	if !ok {
		log.Errorf("couple %v: tractor %q not found", trailer, tractorName)
		return
	}
	if err := m.couple(tractor, trailer); err != nil {
		log.Errorf("couple %v -> %v: %v", tractor, trailer, err)
	}
}

// couple 以各自anchor_point为锚点建立球铰
// 说明：挂车已有牵引车，或牵引车沿牵引链向上会回到挂车（含两者相同）时拒绝
func (m *VehicleManager) couple(tractor, trailer *Vehicle) error {
	if trailer.tractor != nil {
		return fmt.Errorf("%v already towed by %v", trailer, trailer.tractor)
	}
	for o := tractor; o != nil; o = o.tractor {
		if o == trailer {
			return ErrTowCycle
		}
	}
	m.ctx.World().AddSphericalJoint(
		tractor.id, trailer.id,
		tractor.cfg.AnchorPoint.Vec3(), trailer.cfg.AnchorPoint.Vec3(),
	)
	tractor.towing = append(tractor.towing, trailer)
	trailer.tractor = tractor
	log.Infof("couple %v -> %v", tractor, trailer)
	return nil
}

// relayout 尺寸变化后重建碰撞盒与轮胎安装位置
func (m *VehicleManager) relayout(v *Vehicle) {
	m.ctx.World().ResizeBody(v.id, v.cfg.HalfExtents())
	slots := tireLayout(&v.cfg)
	for i, h := range v.tires {
		if t, ok := m.tires.Get(h); ok && i < len(slots) {
			t.offset = slots[i].offset
		}
	}
	log.Infof("resize %v to %v", v, v.cfg.HalfExtents())
}

// Update 更新阶段
// 功能：计算所有车身本步的外力并写入物理世界
// 参数：dt-时间步长
// 算法说明：
// 1. 意图路由：控制器意图写入其唯一的有控制权车辆
// 2. 复位：复位键按下沿把车辆及其挂车放回生成位姿
// 3. 转向：更新前轮转角
// 4. 读取车身状态，计算轮胎位姿并做接地射线检测（所属车身不存在的轮胎跳过并清理）
// 5. 悬挂、驱动/摩擦、侧滑修正依次写入作用力缓冲区
// 6. 取走缓冲区，按车身求合力并覆盖写入外力槽，没有作用力的车身写0
func (m *VehicleManager) Update(dt float64) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	world := m.ctx.World()
	physics := m.ctx.RuntimeConfig().C.Physics
	env := forceEnv{gravity: physics.Gravity, friction: physics.FrictionCoefficient}

	m.routeIntents()
	vehicles := m.Vehicles()
	for _, v := range vehicles {
		m.handleReset(v)
	}
	for _, v := range vehicles {
		if v.Authority() {
			m.updateSteering(v, dt)
		}
	}

	bodies := make([]entity.BodyID, 0, len(vehicles))
	states := make(map[entity.BodyID]entity.BodyState, len(vehicles))
	for _, v := range vehicles {
		if s, ok := world.Body(v.id); ok {
			bodies = append(bodies, v.id)
			states[v.id] = s
		}
	}

	poses := m.tirePoses(states)
	for i := range poses {
		suspension(&poses[i], &m.buffer)
	}
	for i := range poses {
		drivetrain(&poses[i], poses[i].vehicle.intent.ThrottleValue(), env, &m.buffer)
	}
	for i := range poses {
		cornering(&poses[i], &m.buffer)
	}

	contribs := m.buffer.Drain()
	centers := lo.MapValues(states, func(s entity.BodyState, _ entity.BodyID) mgl64.Vec3 { return s.Position })
	applyWrenches(world, bodies, Aggregate(contribs, centers))

	m.snapshot = states
	m.lastForces = contribs
}

// routeIntents 意图路由
// 说明：脚本在生效时间段内覆盖键盘控制器；控制器绑定的有控制权车辆不是恰好一辆时丢弃该控制器本步的意图
func (m *VehicleManager) routeIntents() {
	intents := make(map[entity.ControllerID]Intent, len(m.intents)+1)
	for c, i := range m.intents {
		intents[c] = i
	}
	if e, ok := m.ctx.RuntimeConfig().C.ScriptAt(m.ctx.Clock().T); ok {
		intents[entity.KeyboardController] = IntentFromScript(e)
	}
	for _, v := range m.vehicles {
		v.intent = Intent{}
	}
	controllers := lo.Keys(intents)
	slices.Sort(controllers)
	for _, c := range controllers {
		targets := lo.Filter(m.Vehicles(), func(v *Vehicle, _ int) bool {
			vc, ok := v.Controller()
			return ok && vc == c && v.Authority()
		})
		if len(targets) != 1 {
			log.Warnf("controller %d: %v (found %d), skip intent", c, ErrNotSingleton, len(targets))
			continue
		}
		targets[0].intent = intents[c]
	}
}

// handleReset 复位键按下沿触发复位
func (m *VehicleManager) handleReset(v *Vehicle) {
	pressed := v.intent.Reset
	if pressed && !v.resetHeld {
		m.reset(v)
	}
	v.resetHeld = pressed
}

// reset 把车辆及其挂车放回生成位姿，转角归零
func (m *VehicleManager) reset(v *Vehicle) {
	world := m.ctx.World()
	world.ResetBody(v.id, v.spawnPosition, v.spawnRotation)
	for _, h := range v.tires {
		if t, ok := m.tires.Get(h); ok {
			t.steer = 0
		}
	}
	log.Infof("reset %v", v)
	for _, o := range v.towing {
		m.reset(o)
	}
}

// updateSteering 前轮转角向 steer·turn_radius 跟随，无转向输入时回正
func (m *VehicleManager) updateSteering(v *Vehicle, dt float64) {
	target := v.intent.SteerValue() * v.cfg.TurnRadius
	for _, h := range v.tires {
		t, ok := m.tires.Get(h)
		if !ok || t.Location != Front {
			continue
		}
		t.steer = steerToward(t.steer, target, v.cfg.SteerResponse, dt)
	}
}

// tirePoses 计算所有轮胎的位姿与接地状态
// 说明：每个轮胎的所属车身都重新查找，查找失败的轮胎跳过并从所属关系表中删除；射线检测并行执行
func (m *VehicleManager) tirePoses(states map[entity.BodyID]entity.BodyState) []tirePose {
	world := m.ctx.World()
	tires := make([]*Tire, 0, m.tires.Len())
	m.tires.Each(func(h container.Handle, t *Tire) bool {
		_, okV := m.vehicles[t.owner]
		_, okS := states[t.owner]
		if !okV || !okS {
			log.Debugf("skip %v: %v", t, ErrOrphanTire)
			m.tires.Remove(h)
			return true
		}
		tires = append(tires, t)
		return true
	})
	return parallel.GoMap(tires, func(t *Tire) tirePose {
		p := poseOf(t, m.vehicles[t.owner], states[t.owner], world)
		p.castGround(world)
		return p
	})
}

// LastForces 最近一步合力计算前的全部作用力（副本）
func (m *VehicleManager) LastForces() []ForceContribution {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return slices.Clone(m.lastForces)
}

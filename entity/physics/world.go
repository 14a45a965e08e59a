package physics

import (
	"slices"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
)

const (
	contactIterations = 8
	contactBaumgarte  = 0.2   // 穿透位置修正系数
	contactSlop       = 0.005 // 允许的穿透深度（米）
	jointStiffness    = 400.0 // 球铰刚度（按折合质量归一，1/秒²）
	jointDamping      = 40.0  // 球铰阻尼（按折合质量归一，1/秒）
)

// staticBox 静态轴对齐盒
type staticBox struct {
	center, halfExtents mgl64.Vec3
	min, max            mgl64.Vec3
}

// World 最小刚体世界
// 功能：为车辆受力模型提供外部物理引擎的能力：射线检测、外力槽、积分、球铰
// 说明：只支持盒形刚体与静态轴对齐盒；刚体之间不做碰撞
type World struct {
	gravity mgl64.Vec3

	bodies map[entity.BodyID]*body
	order  []entity.BodyID // 按ID升序，保证遍历顺序确定
	nextID entity.BodyID

	statics []staticBox
	joints  []*sphericalJoint
}

// New 创建物理世界
// 参数：gravity-重力加速度大小（沿-Y）
func New(gravity float64) *World {
	return &World{
		gravity: mgl64.Vec3{0, -gravity, 0},
		bodies:  make(map[entity.BodyID]*body),
		order:   make([]entity.BodyID, 0),
		nextID:  1,
		statics: make([]staticBox, 0),
		joints:  make([]*sphericalJoint, 0),
	}
}

func (w *World) AddBody(desc entity.BodyDesc) entity.BodyID {
	id := w.nextID
	w.nextID++
	w.bodies[id] = newBody(id, desc)
	w.order = append(w.order, id)
	log.Debugf("add body %v mass=%.3f", id, w.bodies[id].mass)
	return id
}

// RemoveBody 删除刚体，连接该刚体的关节一并删除
func (w *World) RemoveBody(id entity.BodyID) {
	if _, ok := w.bodies[id]; !ok {
		return
	}
	delete(w.bodies, id)
	w.order = slices.DeleteFunc(w.order, func(x entity.BodyID) bool { return x == id })
	w.joints = slices.DeleteFunc(w.joints, func(j *sphericalJoint) bool { return j.a == id || j.b == id })
	log.Debugf("remove body %v", id)
}

func (w *World) Body(id entity.BodyID) (entity.BodyState, bool) {
	b, ok := w.bodies[id]
	if !ok {
		return entity.BodyState{}, false
	}
	return b.state(), true
}

func (w *World) ResetBody(id entity.BodyID, position mgl64.Vec3, rotation mgl64.Quat) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.position = position
	b.rotation = rotation.Normalize()
	b.linVel = mgl64.Vec3{}
	b.angVel = mgl64.Vec3{}
	return true
}

func (w *World) ResizeBody(id entity.BodyID, halfExtents mgl64.Vec3) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.halfExtents = halfExtents
	b.updateMassProperties()
	return true
}

func (w *World) AddStaticBox(center, halfExtents mgl64.Vec3) int {
	w.statics = append(w.statics, staticBox{
		center:      center,
		halfExtents: halfExtents,
		min:         center.Sub(halfExtents),
		max:         center.Add(halfExtents),
	})
	return len(w.statics) - 1
}

func (w *World) VelocityAtPoint(linVel, angVel, point, centerOfMass mgl64.Vec3) mgl64.Vec3 {
	return linVel.Add(angVel.Cross(point.Sub(centerOfMass)))
}

func (w *World) Overlaps(id entity.BodyID, center, halfExtents mgl64.Vec3) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	bmin, bmax := b.aabb()
	zmin, zmax := center.Sub(halfExtents), center.Add(halfExtents)
	for i := range 3 {
		if bmax[i] < zmin[i] || bmin[i] > zmax[i] {
			return false
		}
	}
	return true
}

func (w *World) SetExternalForce(id entity.BodyID, force, torque mgl64.Vec3) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.force = force
	b.torque = torque
	return true
}

func (w *World) ExternalForce(id entity.BodyID) (force, torque mgl64.Vec3, ok bool) {
	b, ok := w.bodies[id]
	if !ok {
		return
	}
	return b.force, b.torque, true
}

func (w *World) AddSphericalJoint(a, b entity.BodyID, anchorA, anchorB mgl64.Vec3) int {
	w.joints = append(w.joints, &sphericalJoint{a: a, b: b, anchorA: anchorA, anchorB: anchorB})
	return len(w.joints) - 1
}

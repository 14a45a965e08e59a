package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
)

// body 盒形动态刚体
// 功能：保存刚体的位姿、速度、质量属性与外力槽
// 说明：外力槽由上层每步覆盖写入，积分后不清零
type body struct {
	id entity.BodyID

	position mgl64.Vec3 // 质心位置
	rotation mgl64.Quat
	linVel   mgl64.Vec3
	angVel   mgl64.Vec3

	halfExtents mgl64.Vec3
	density     float64
	friction    float64

	mass            float64
	invMass         float64
	invInertiaLocal mgl64.Vec3 // 局部坐标系下的惯量张量之逆（对角）

	force  mgl64.Vec3 // 外力
	torque mgl64.Vec3 // 外力矩
}

func newBody(id entity.BodyID, desc entity.BodyDesc) *body {
	rotation := desc.Rotation
	if rotation.Len() == 0 {
		rotation = mgl64.QuatIdent()
	}
	density := desc.Density
	if density <= 0 {
		density = 1
	}
	b := &body{
		id:          id,
		position:    desc.Position,
		rotation:    rotation.Normalize(),
		halfExtents: desc.HalfExtents,
		density:     density,
		friction:    desc.Friction,
	}
	b.updateMassProperties()
	return b
}

// updateMassProperties 根据碰撞盒尺寸与密度计算质量与转动惯量
// 算法说明：
// 1. m = ρ·(2hx)(2hy)(2hz)
// 2. 盒体主惯量 Ix = m/3·(hy²+hz²)，其余同理
func (b *body) updateMassProperties() {
	h := b.halfExtents
	b.mass = b.density * 8 * h.X() * h.Y() * h.Z()
	if b.mass <= 0 {
		log.Warnf("body %v has non-positive mass (half extents %v), treat as 1", b.id, h)
		b.mass = 1
	}
	b.invMass = 1 / b.mass
	inertia := mgl64.Vec3{
		b.mass / 3 * (h.Y()*h.Y() + h.Z()*h.Z()),
		b.mass / 3 * (h.X()*h.X() + h.Z()*h.Z()),
		b.mass / 3 * (h.X()*h.X() + h.Y()*h.Y()),
	}
	for i := range 3 {
		if inertia[i] > 0 {
			b.invInertiaLocal[i] = 1 / inertia[i]
		} else {
			b.invInertiaLocal[i] = 0
		}
	}
}

// invInertiaWorld 世界坐标系下的惯量张量之逆 R·I⁻¹·Rᵀ
func (b *body) invInertiaWorld() mgl64.Mat3 {
	r := b.rotation.Mat4().Mat3()
	return r.Mul3(mgl64.Diag3(b.invInertiaLocal)).Mul3(r.Transpose())
}

func (b *body) pointVelocity(point mgl64.Vec3) mgl64.Vec3 {
	return b.linVel.Add(b.angVel.Cross(point.Sub(b.position)))
}

// corners 碰撞盒8个顶点的世界坐标
func (b *body) corners() [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	h := b.halfExtents
	i := 0
	for _, sx := range []float64{-1, 1} {
		for _, sy := range []float64{-1, 1} {
			for _, sz := range []float64{-1, 1} {
				local := mgl64.Vec3{sx * h.X(), sy * h.Y(), sz * h.Z()}
				out[i] = b.position.Add(b.rotation.Rotate(local))
				i++
			}
		}
	}
	return out
}

// aabb 世界坐标系下的轴对齐包围盒
func (b *body) aabb() (min, max mgl64.Vec3) {
	min = mgl64.Vec3{math.Inf(1), math.Inf(1), math.Inf(1)}
	max = mgl64.Vec3{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, c := range b.corners() {
		for i := range 3 {
			min[i] = math.Min(min[i], c[i])
			max[i] = math.Max(max[i], c[i])
		}
	}
	return
}

func (b *body) state() entity.BodyState {
	return entity.BodyState{
		ID:          b.id,
		Position:    b.position,
		Rotation:    b.rotation,
		LinVel:      b.linVel,
		AngVel:      b.angVel,
		Mass:        b.mass,
		HalfExtents: b.halfExtents,
	}
}

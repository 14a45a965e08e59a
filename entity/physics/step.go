package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
)

// wrench 作用于质心的力与力矩
type wrench struct {
	force, torque mgl64.Vec3
}

func (w *wrench) addAt(b *body, force, point mgl64.Vec3) {
	w.force = w.force.Add(force)
	w.torque = w.torque.Add(point.Sub(b.position).Cross(force))
}

// sphericalJoint 软球铰
// 说明：以弹簧阻尼力把两个锚点拉到一起，不做精确约束求解
type sphericalJoint struct {
	a, b             entity.BodyID
	anchorA, anchorB mgl64.Vec3 // 各自局部坐标系下的锚点
}

func (j *sphericalJoint) apply(w *World, acc map[entity.BodyID]*wrench) {
	a, okA := w.bodies[j.a]
	b, okB := w.bodies[j.b]
	if !okA || !okB {
		return
	}
	pa := a.position.Add(a.rotation.Rotate(j.anchorA))
	pb := b.position.Add(b.rotation.Rotate(j.anchorB))
	reduced := a.mass * b.mass / (a.mass + b.mass)
	stretch := pb.Sub(pa)
	relVel := b.pointVelocity(pb).Sub(a.pointVelocity(pa))
	f := stretch.Mul(jointStiffness * reduced).Add(relVel.Mul(jointDamping * reduced))
	acc[a.id].addAt(a, f, pa)
	acc[b.id].addAt(b, f.Mul(-1), pb)
}

// penetration 点在静态盒内时返回最浅的推出方向（坐标轴方向）与深度
func (s *staticBox) penetration(p mgl64.Vec3) (axis int, sign float64, depth float64, ok bool) {
	for i := range 3 {
		if p[i] < s.min[i] || p[i] > s.max[i] {
			return 0, 0, 0, false
		}
	}
	depth = math.Inf(1)
	for i := range 3 {
		if d := s.max[i] - p[i]; d < depth {
			axis, sign, depth = i, 1, d
		}
		if d := p[i] - s.min[i]; d < depth {
			axis, sign, depth = i, -1, d
		}
	}
	return axis, sign, depth, true
}

// contact 刚体顶点与静态盒的接触
type contact struct {
	r     mgl64.Vec3    // 接触点相对质心
	axes  [3]mgl64.Vec3 // 法向与两个切向
	bias  float64       // 位置修正目标法向速度
	accum [3]float64    // 累计冲量
}

func (b *body) applyImpulse(impulse, r mgl64.Vec3) {
	b.linVel = b.linVel.Add(impulse.Mul(b.invMass))
	b.angVel = b.angVel.Add(b.invInertiaWorld().Mul3x1(r.Cross(impulse)))
}

// effectiveMassInv 沿方向d在接触点r处的等效质量之逆
func (b *body) effectiveMassInv(invI mgl64.Mat3, r, d mgl64.Vec3) float64 {
	rd := r.Cross(d)
	return b.invMass + rd.Dot(invI.Mul3x1(rd))
}

// collectContacts 收集刚体所有嵌入静态盒的顶点
func (w *World) collectContacts(b *body, dt float64) []contact {
	var out []contact
	for _, corner := range b.corners() {
		for i := range w.statics {
			axis, sign, depth, ok := w.statics[i].penetration(corner)
			if !ok {
				continue
			}
			var c contact
			c.r = corner.Sub(b.position)
			c.axes[0][axis] = sign
			c.axes[1][(axis+1)%3] = 1
			c.axes[2][(axis+2)%3] = 1
			c.bias = contactBaumgarte * math.Max(depth-contactSlop, 0) / dt
			out = append(out, c)
		}
	}
	return out
}

// solveContacts 顶点接触的顺序冲量求解
// 算法说明：
// 1. 法向冲量使法向速度不小于位置修正速度，累计冲量不小于0
// 2. 切向冲量使切向速度趋于0，累计冲量限制在 ±μ·法向冲量
func (w *World) solveContacts(b *body, contacts []contact) {
	if len(contacts) == 0 {
		return
	}
	invI := b.invInertiaWorld()
	for range contactIterations {
		for k := range contacts {
			c := &contacts[k]
			for a := range 3 {
				d := c.axes[a]
				kInv := b.effectiveMassInv(invI, c.r, d)
				if kInv <= 0 {
					continue
				}
				v := b.linVel.Add(b.angVel.Cross(c.r)).Dot(d)
				target := 0.0
				if a == 0 {
					target = c.bias
				}
				old := c.accum[a]
				next := old + (target-v)/kInv
				if a == 0 {
					next = math.Max(next, 0)
				} else {
					limit := b.friction * c.accum[0]
					next = math.Max(-limit, math.Min(limit, next))
				}
				c.accum[a] = next
				b.applyImpulse(d.Mul(next-old), c.r)
			}
		}
	}
}

// Step 积分一步
// 功能：以半隐式欧拉法推进所有刚体
// 参数：dt-时间步长（秒）
// 算法说明：
// 1. 每个刚体从外力槽出发累加力与力矩（外力槽本身不被修改），叠加球铰力
// 2. v += (F/m + g)·dt，ω += I⁻¹τ·dt
// 3. 顶点与静态几何体的接触以冲量修正速度
// 4. x += v·dt，q += ½·(0,ω)·q·dt 后归一化
func (w *World) Step(dt float64) {
	if dt <= 0 {
		return
	}
	acc := make(map[entity.BodyID]*wrench, len(w.bodies))
	for _, id := range w.order {
		b := w.bodies[id]
		acc[id] = &wrench{force: b.force, torque: b.torque}
	}
	for _, j := range w.joints {
		j.apply(w, acc)
	}
	for _, id := range w.order {
		b := w.bodies[id]
		a := acc[id]
		b.linVel = b.linVel.Add(a.force.Mul(b.invMass).Add(w.gravity).Mul(dt))
		b.angVel = b.angVel.Add(b.invInertiaWorld().Mul3x1(a.torque).Mul(dt))
		w.solveContacts(b, w.collectContacts(b, dt))
		b.position = b.position.Add(b.linVel.Mul(dt))
		spin := mgl64.Quat{W: 0, V: b.angVel}.Mul(b.rotation).Scale(0.5 * dt)
		b.rotation = b.rotation.Add(spin).Normalize()
	}
}

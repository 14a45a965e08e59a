package vehicle

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
)

// Wrench 作用于质心的合力与合力矩
type Wrench struct {
	Force  mgl64.Vec3
	Torque mgl64.Vec3
}

// Aggregate 合力计算
// 功能：按所属车身分组，把作用点上的力换算为质心处的力与力矩并求和
// 参数：contribs-本步全部作用力，centers-各车身质心
// 返回：车身ID到合力的映射，没有作用力的车身不出现
// 算法说明：
// 1. F = Σ f_i
// 2. τ = Σ (p_i - com) × f_i
// 说明：所属车身不在centers中的作用力被丢弃
func Aggregate(contribs []ForceContribution, centers map[entity.BodyID]mgl64.Vec3) map[entity.BodyID]Wrench {
	out := make(map[entity.BodyID]Wrench)
	for _, c := range contribs {
		com, ok := centers[c.Body]
		if !ok {
			log.Debugf("drop %v: %v", c, ErrNoBody)
			continue
		}
		w := out[c.Body]
		w.Force = w.Force.Add(c.Force)
		w.Torque = w.Torque.Add(c.Point.Sub(com).Cross(c.Force))
		out[c.Body] = w
	}
	return out
}

// applyWrenches 覆盖写入所有车身的外力槽，没有作用力的车身写0
func applyWrenches(world entity.IPhysicsWorld, bodies []entity.BodyID, wrenches map[entity.BodyID]Wrench) {
	for _, id := range bodies {
		w := wrenches[id]
		if !world.SetExternalForce(id, w.Force, w.Torque) {
			log.Warnf("set external force on %v: %v", id, ErrNoBody)
		}
	}
}

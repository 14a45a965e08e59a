package vehicle

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// stillSpeed 水平速度低于该值时视为静止，不再施加滚动摩擦
const stillSpeed = 0.05

// forceEnv 受力计算用到的全局物理参数
type forceEnv struct {
	gravity  float64 // 重力加速度大小
	friction float64 // 滚动摩擦系数μ
}

// frictionMagnitude 单个轮胎的滚动摩擦力大小 (m/4)·μ·g
func frictionMagnitude(mass, mu, g float64) float64 {
	return mass / 4 * mu * g
}

// drivetrain 驱动、制动与滚动摩擦
// 功能：着地轮胎（射线在TractionThreshold内命中）按油门输出驱动力，松开油门时输出滚动摩擦
// 参数：p-轮胎位姿，throttle-油门量[-1,1]，env-物理参数，out-作用力缓冲区
// 算法说明：
// 1. 油门非0：只有连接发动机的轮胎输出 forward·Power(|v|/max_speed)·throttle
// 2. 油门为0且车身水平速度非0：每个着地轮胎输出大小固定为(m/4)·μ·g的力，
//    方向沿车身纵轴，与轮胎处纵向速度相反
func drivetrain(p *tirePose, throttle float64, env forceEnv, out *Buffer) {
	if !p.grounded {
		return
	}
	c := &p.vehicle.cfg
	if throttle != 0 {
		if !c.Authority || !p.tire.ConnectedToEngine {
			return
		}
		r := speedRatio(p.body.LinVel.Len(), c.MaxSpeed)
		out.Add(ForceContribution{
			Force: p.forward.Mul(Power(r, c.MaxForce) * throttle),
			Point: p.position,
			Body:  p.body.ID,
			Kind:  ForceDrive,
		})
		return
	}
	planar := mgl64.Vec2{p.body.LinVel.X(), p.body.LinVel.Z()}
	if planar.Len() < stillSpeed {
		return
	}
	longitudinal := p.body.Rotation.Rotate(axisForward)
	along := longitudinal.Dot(p.velocity)
	if along == 0 {
		return
	}
	magnitude := frictionMagnitude(p.body.Mass, env.friction, env.gravity)
	out.Add(ForceContribution{
		Force: longitudinal.Mul(-math.Copysign(magnitude, along)),
		Point: p.position,
		Body:  p.body.ID,
		Kind:  ForceFriction,
	})
}

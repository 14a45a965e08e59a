package vehicle

import "math"

// steerToward 转角向目标值跟随
// 参数：current-当前转角，target-目标转角，response-跟随速率（1/秒），dt-时间步长
// 返回：新转角
// 算法说明：按 alpha = 1 - exp(-response·dt) 混合，与帧率无关；response非正时立即到位
func steerToward(current, target, response, dt float64) float64 {
	if response <= 0 {
		return target
	}
	if dt <= 0 {
		return current
	}
	alpha := 1 - math.Exp(-response*dt)
	return current + (target-current)*alpha
}

// cornering 侧滑修正力
// 功能：每个着地轮胎抵消一部分侧向速度
// 算法说明：
// 1. lat = 侧向轴·轮胎处速度（前轮侧向轴已计入转角）
// 2. Δv = -lat·grip，a = Δv·gain
// 3. 输出 侧向轴·a·(m/轮胎数)
func cornering(p *tirePose, out *Buffer) {
	n := p.vehicle.tireCount()
	if !p.grounded || n == 0 {
		return
	}
	c := &p.vehicle.cfg
	lat := p.lateral.Dot(p.velocity)
	desiredVelocityChange := -lat * c.GripStrength
	desiredAcceleration := desiredVelocityChange * c.CorneringGain
	out.Add(ForceContribution{
		Force: p.lateral.Mul(desiredAcceleration * p.body.Mass / float64(n)),
		Point: p.position,
		Body:  p.body.ID,
		Kind:  ForceCornering,
	})
}

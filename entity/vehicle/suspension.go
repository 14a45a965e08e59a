package vehicle

// suspensionForce 弹簧阻尼力
// 参数：compression-压缩量（正为压缩），closingVelocity-沿悬挂方向的速度，springPower-刚度，shock-阻尼
// 返回：沿悬挂方向的力，正值把车身推离地面
func suspensionForce(compression, closingVelocity, springPower, shock float64) float64 {
	return compression*springPower - closingVelocity*shock
}

// suspension 悬挂力
// 功能：射线在静止长度spring_offset内命中地面时，沿轮胎向上方向输出弹簧阻尼力
// 说明：各轮胎独立计算，没有防倾杆耦合
func suspension(p *tirePose, out *Buffer) {
	c := &p.vehicle.cfg
	if !p.grounded || p.hit.Distance > c.SpringOffset {
		return
	}
	compression := c.SpringOffset - p.hit.Distance
	closing := p.up.Dot(p.velocity)
	f := suspensionForce(compression, closing, c.SpringPower, c.Shock)
	out.Add(ForceContribution{
		Force: p.up.Mul(f),
		Point: p.position,
		Body:  p.body.ID,
		Kind:  ForceSuspension,
	})
}

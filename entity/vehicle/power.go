package vehicle

import (
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
)

const (
	plateauStart = 0.4
	plateauEnd   = 0.698
)

// Power 动力曲线
// 功能：按速度比查表得到可用驱动力，近似发动机扭矩曲线
// 参数：speedRatio-|v|/max_speed，maxForce-最大驱动力
// 返回：驱动力，取值[0, maxForce]
// 算法说明：
// 1. r < 0：0.5·maxForce（速度大小不会为负，仅作兜底）
// 2. 0 ≤ r < 0.4：-log10(-0.5r+0.3)·maxForce
// 3. 0.4 ≤ r ≤ 0.698：maxForce
// 4. 0.698 < r ≤ 1：(log10(-5r+6)+0.6)·maxForce
// 5. r > 1或NaN：0
func Power(speedRatio, maxForce float64) float64 {
	r := speedRatio
	switch {
	case math.IsNaN(r):
		return 0
	case r < 0:
		return 0.5 * maxForce
	case r < plateauStart:
		return -math.Log10(-0.5*r+0.3) * maxForce
	case r <= plateauEnd:
		return maxForce
	case r <= 1:
		return (math.Log10(-5*r+6) + 0.6) * maxForce
	default:
		return 0
	}
}

// speedRatio 速度比，maxSpeed非正时视为超过最大速度
func speedRatio(speed, maxSpeed float64) float64 {
	if maxSpeed <= 0 {
		return mathutil.INF
	}
	return speed / maxSpeed
}

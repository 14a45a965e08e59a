package vehicle

import (
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

// Keys 按键状态
type Keys struct {
	Accelerate bool
	Brake      bool
	SteerLeft  bool
	SteerRight bool
	Reset      bool
}

// Intent 驾驶意图
// 功能：按键与模拟量输入的组合，模拟量非0时覆盖按键
type Intent struct {
	Keys
	Throttle float64 // 模拟量油门[-1,1]，负值为制动/倒车
	Steer    float64 // 模拟量转向[-1,1]，正值向左
}

// ThrottleValue 油门量
// 返回：[-1,1]，加速为1，制动为-1，同时按下或都不按为0
func (i Intent) ThrottleValue() float64 {
	if i.Throttle != 0 {
		return lo.Clamp(i.Throttle, -1, 1)
	}
	return axis(i.Accelerate, i.Brake)
}

// SteerValue 转向量
// 返回：[-1,1]，向左为正
func (i Intent) SteerValue() float64 {
	if i.Steer != 0 {
		return lo.Clamp(i.Steer, -1, 1)
	}
	return axis(i.SteerLeft, i.SteerRight)
}

func axis(positive, negative bool) float64 {
	v := 0.0
	if positive {
		v++
	}
	if negative {
		v--
	}
	return v
}

// IntentFromScript 由脚本项构造驾驶意图
func IntentFromScript(e config.ScriptEntry) Intent {
	return Intent{
		Keys: Keys{
			Accelerate: e.Accelerate,
			Brake:      e.Brake,
			SteerLeft:  e.SteerLeft,
			SteerRight: e.SteerRight,
			Reset:      e.Reset,
		},
		Throttle: e.Throttle,
		Steer:    e.Steer,
	}
}

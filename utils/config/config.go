package config

const (
	defaultGravity             = 9.81
	defaultFrictionCoefficient = 0.5
	defaultGroundSize          = 100
	defaultGroundHeight        = 0.1
	defaultInterval            = 1.0 / 60
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，缺省项已补全
// 说明：将YAML配置转换为运行时可用的配置对象
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 全局控制配置
	W   World   // 场景配置
}

// NewRuntimeConfig 根据配置初始化全局变量
// 功能：创建运行时配置对象，补全缺省值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. 步长缺省为1/60秒，子循环数缺省为1
// 2. 重力与摩擦系数缺省为9.81与0.5
// 3. 地面尺寸缺省为100×0.1
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	if config.Control.Step.Interval <= 0 {
		config.Control.Step.Interval = defaultInterval
	}
	if config.Control.Step.Subloop <= 0 {
		config.Control.Step.Subloop = 1
	}
	if config.Control.Physics.Gravity == 0 {
		config.Control.Physics.Gravity = defaultGravity
	}
	if config.Control.Physics.FrictionCoefficient == 0 {
		config.Control.Physics.FrictionCoefficient = defaultFrictionCoefficient
	}
	if config.World.GroundSize <= 0 {
		config.World.GroundSize = defaultGroundSize
	}
	if config.World.GroundHeight <= 0 {
		config.World.GroundHeight = defaultGroundHeight
	}

	rc.All = config
	rc.C = config.Control
	rc.W = config.World

	return rc
}

// ScriptAt 查找t时刻生效的脚本输入
// 返回：第一个包含t的脚本项，不存在则返回false
func (c Control) ScriptAt(t float64) (ScriptEntry, bool) {
	for _, e := range c.Script {
		if e.Start <= t && t < e.End {
			return e, true
		}
	}
	return ScriptEntry{}, false
}

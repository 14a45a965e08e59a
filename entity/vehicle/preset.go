package vehicle

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

const (
	CarPreset     = "Car"
	TrailerPreset = "Trailer"

	defaultGripStrength  = 0.7
	defaultCorneringGain = 5
	defaultSteerResponse = 10
	couplingGap          = 0.787 // 挂接点到车身端面的距离
)

// DefaultPresets 内置车型预设
// 返回：Car与Trailer两种车型，每次调用返回新的map
func DefaultPresets() map[string]config.VehicleConfig {
	const (
		carHeight     = 1.452024 / 2
		carWidth      = 2.02946 / 2
		carLength     = 5.31114 / 2
		trailerHeight = 0.18234 / 2
		trailerWidth  = 2.159 / 2
		trailerLength = 7.8768 / 2
	)
	return map[string]config.VehicleConfig{
		CarPreset: {
			Name:          CarPreset,
			Height:        carHeight,
			Width:         carWidth,
			Length:        carLength,
			Wheelbase:     3.11912 / 2,
			WheelOffset:   0,
			SpringOffset:  1.252926,
			SpringPower:   300,
			Shock:         45,
			MaxSpeed:      50,
			MaxForce:      100,
			TurnRadius:    0.45811518324607,
			AnchorPoint:   config.Point{X: -carLength - couplingGap, Y: -0.7, Z: 0},
			Density:       1,
			GripStrength:  defaultGripStrength,
			CorneringGain: defaultCorneringGain,
			SteerResponse: defaultSteerResponse,
			Drive:         config.DriveFront,
			Authority:     true,
		},
		TrailerPreset: {
			Name:          TrailerPreset,
			Height:        trailerHeight,
			Width:         trailerWidth,
			Length:        trailerLength,
			Wheelbase:     0.5,
			WheelOffset:   -1,
			SpringOffset:  1,
			AnchorPoint:   config.Point{X: trailerLength + couplingGap, Y: -trailerHeight, Z: 0},
			Density:       1,
			GripStrength:  defaultGripStrength,
			CorneringGain: defaultCorneringGain,
			Drive:         config.DriveNone,
			Authority:     false,
		},
	}
}

// Registry 车型预设表
// 功能：预设名到车型参数的映射，启动时构造，此后只读
// 说明：Lookup返回副本，车辆的实时调参只修改自己的副本
type Registry struct {
	presets map[string]config.VehicleConfig
}

// NewRegistry 构造预设表
// 参数：overrides-外部载入的预设，覆盖同名内置预设
func NewRegistry(overrides map[string]config.VehicleConfig) *Registry {
	presets := DefaultPresets()
	for name, c := range overrides {
		if c.Name == "" {
			c.Name = name
		}
		presets[name] = normalize(c)
	}
	return &Registry{presets: presets}
}

// normalize 补全缺省参数
// 说明：预设文件与实时调参共用，GripStrength与CorneringGain为0都视为未设置
func normalize(c config.VehicleConfig) config.VehicleConfig {
	if c.Density <= 0 {
		c.Density = 1
	}
	if c.GripStrength == 0 {
		c.GripStrength = defaultGripStrength
	}
	if c.CorneringGain == 0 {
		c.CorneringGain = defaultCorneringGain
	}
	if c.Drive == "" {
		c.Drive = lo.Ternary(c.Authority, config.DriveFront, config.DriveNone)
	}
	return c
}

// Lookup 查找预设，返回副本
func (r *Registry) Lookup(name string) (config.VehicleConfig, error) {
	c, ok := r.presets[name]
	if !ok {
		return config.VehicleConfig{}, fmt.Errorf("preset %q: %w", name, ErrUnknownPreset)
	}
	return c, nil
}

// Names 所有预设名（升序）
func (r *Registry) Names() []string {
	names := lo.Keys(r.presets)
	slices.Sort(names)
	return names
}

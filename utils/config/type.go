package config

import "github.com/go-gl/mathgl/mgl64"

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string `yaml:"db"`                   // 数据库名
	Col       string `yaml:"col"`                  // 集合名
	Cache     string `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool   `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 说明：未指定缓存路径时使用默认命名规则：{数据库名}.{集合名}.pb
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 指定模拟器所有输入数据的配置项
type Input struct {
	URI     string     `yaml:"uri,omitempty"`     // MongoDB连接字符串
	Presets *InputPath `yaml:"presets,omitempty"` // 车型预设，为空则只使用配置文件内联与内置预设
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
// 功能：定义仿真时间控制参数
// 说明：控制仿真的时间范围、步长和精度
type ControlStep struct {
	Start    int32   `yaml:"start"`              // 开始步数
	Total    int32   `yaml:"total"`              // 总步数
	Interval float64 `yaml:"interval"`           // 每步的时间间隔（秒）
	Subloop  int32   `yaml:"subloop,omitempty"`  // 每步内部循环次数，默认为1
	Realtime bool    `yaml:"realtime,omitempty"` // 是否按墙上时钟节奏运行
}

// Physics 物理世界参数
type Physics struct {
	Gravity             float64 `yaml:"gravity,omitempty"`              // 重力加速度（米/秒²）
	FrictionCoefficient float64 `yaml:"friction_coefficient,omitempty"` // 滚动摩擦系数μ
}

// ScriptEntry 脚本化驾驶输入，在[Start, End)时间段内生效，作用于键盘控制器（ID为0）
type ScriptEntry struct {
	Start      float64 `yaml:"start"` // 开始时间（秒）
	End        float64 `yaml:"end"`   // 结束时间（秒）
	Accelerate bool    `yaml:"accelerate,omitempty"`
	Brake      bool    `yaml:"brake,omitempty"`
	SteerLeft  bool    `yaml:"steer_left,omitempty"`
	SteerRight bool    `yaml:"steer_right,omitempty"`
	Reset      bool    `yaml:"reset,omitempty"`
	Throttle   float64 `yaml:"throttle,omitempty"` // 模拟量油门[-1,1]，非0时覆盖按键
	Steer      float64 `yaml:"steer,omitempty"`    // 模拟量转向[-1,1]，正值向左，非0时覆盖按键
}

// Control 模拟器控制配置
type Control struct {
	Step    ControlStep   `yaml:"step"`
	Physics Physics       `yaml:"physics,omitempty"`
	Script  []ScriptEntry `yaml:"script,omitempty"`
}

// Point 三维坐标，YAML中以{x, y, z}表示
type Point struct {
	X float64 `yaml:"x" bson:"x"`
	Y float64 `yaml:"y" bson:"y"`
	Z float64 `yaml:"z" bson:"z"`
}

func (p Point) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{p.X, p.Y, p.Z}
}

func PointOf(v mgl64.Vec3) Point {
	return Point{X: v[0], Y: v[1], Z: v[2]}
}

// Drive 驱动形式
type Drive string

const (
	DriveFront Drive = "front" // 前驱
	DriveRear  Drive = "rear"  // 后驱
	DriveAll   Drive = "all"   // 四驱
	DriveNone  Drive = "none"  // 无动力（挂车）
)

// VehicleConfig 车型参数
// 功能：描述一种车型的尺寸、悬挂、动力与转向参数
// 说明：长宽高均为半长，车身局部坐标系+X为车头方向，+Y向上，+Z为车身右侧
type VehicleConfig struct {
	Name string `yaml:"name,omitempty" bson:"name"` // 预设名

	Height float64 `yaml:"height" bson:"height"` // 车身半高
	Width  float64 `yaml:"width" bson:"width"`   // 车身半宽
	Length float64 `yaml:"length" bson:"length"` // 车身半长

	Wheelbase   float64 `yaml:"wheelbase" bson:"wheelbase"`       // 半轴距，前后轴相对WheelOffset的纵向距离
	WheelOffset float64 `yaml:"wheel_offset" bson:"wheel_offset"` // 轮轴中心的纵向偏移

	SpringOffset float64 `yaml:"spring_offset" bson:"spring_offset"` // 悬挂静止长度
	SpringPower  float64 `yaml:"spring_power" bson:"spring_power"`   // 弹簧刚度
	Shock        float64 `yaml:"shock" bson:"shock"`                 // 阻尼系数

	MaxSpeed   float64 `yaml:"max_speed" bson:"max_speed"`     // 最大速度（米/秒）
	MaxForce   float64 `yaml:"max_force" bson:"max_force"`     // 最大驱动力（牛）
	TurnRadius float64 `yaml:"turn_radius" bson:"turn_radius"` // 前轮最大转角（弧度）

	AnchorPoint Point `yaml:"anchor_point" bson:"anchor_point"` // 挂接点（车身局部坐标）

	Density       float64 `yaml:"density,omitempty" bson:"density,omitempty"`               // 车身密度，质量=密度×体积
	GripStrength  float64 `yaml:"grip_strength,omitempty" bson:"grip_strength,omitempty"`   // 侧向抓地比例，0表示使用默认值
	CorneringGain float64 `yaml:"cornering_gain,omitempty" bson:"cornering_gain,omitempty"` // 侧滑修正增益，0表示使用默认值
	SteerResponse float64 `yaml:"steer_response,omitempty" bson:"steer_response,omitempty"` // 转角跟随速率（1/秒），0表示立即到位

	Drive     Drive `yaml:"drive,omitempty" bson:"drive,omitempty"`         // 驱动形式
	Authority bool  `yaml:"authority,omitempty" bson:"authority,omitempty"` // 是否具有发动机与转向控制权
}

// HalfExtents 车身碰撞盒半长
func (c *VehicleConfig) HalfExtents() mgl64.Vec3 {
	return mgl64.Vec3{c.Length, c.Height, c.Width}
}

// TractionThreshold 驱动、摩擦与侧向力的着地判定距离，比悬挂判定略宽
func (c *VehicleConfig) TractionThreshold() float64 {
	return c.SpringOffset * 1.25
}

// SpawnConfig 初始车辆
type SpawnConfig struct {
	Name       string  `yaml:"name"`                 // 车辆名，用于挂接引用
	Preset     string  `yaml:"preset"`               // 车型预设名
	Position   Point   `yaml:"position"`             // 初始位置
	Yaw        float64 `yaml:"yaw,omitempty"`        // 初始朝向（弧度，绕+Y）
	Controller *int32  `yaml:"controller,omitempty"` // 控制器ID，为空表示不接受输入
	TowedBy    string  `yaml:"towed_by,omitempty"`   // 牵引车辆名
}

// Bumps 地面随机凸起
type Bumps struct {
	Count     int     `yaml:"count"`
	Seed      uint64  `yaml:"seed"`
	Size      float64 `yaml:"size"`       // 凸起最大半边长
	MaxHeight float64 `yaml:"max_height"` // 凸起最大半高
}

// Zone 轴对齐区域
type Zone struct {
	Center      Point `yaml:"center"`
	HalfExtents Point `yaml:"half_extents"`
}

// World 场景配置
type World struct {
	GroundSize   float64 `yaml:"ground_size,omitempty"`   // 地面半边长
	GroundHeight float64 `yaml:"ground_height,omitempty"` // 地面半厚度
	Bumps        *Bumps  `yaml:"bumps,omitempty"`
	ParkingSpot  *Zone   `yaml:"parking_spot,omitempty"`
}

// Config YAML配置文件的根结构
// 功能：定义整个仿真系统的配置结构
// 说明：包含输入、控制、场景、车型与初始车辆
type Config struct {
	Input    Input                    `yaml:"input,omitempty"`
	Control  Control                  `yaml:"control"`
	World    World                    `yaml:"world,omitempty"`
	Presets  map[string]VehicleConfig `yaml:"presets,omitempty"` // 内联车型预设，覆盖同名内置预设
	Vehicles []SpawnConfig            `yaml:"vehicles,omitempty"`
}

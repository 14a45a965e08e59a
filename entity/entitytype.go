package entity

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

// BodyID 刚体ID，由物理世界分配，0表示无效
type BodyID uint32

// ControllerID 输入控制器ID，0为键盘，其余为手柄
type ControllerID int32

const (
	KeyboardController ControllerID = 0 // 键盘控制器
)

// QueryFilter 射线检测过滤条件
type QueryFilter uint8

const (
	QueryFixed   QueryFilter = 1 << iota // 只检测静态几何体
	QueryDynamic                         // 只检测动态刚体
	QueryAll     = QueryFixed | QueryDynamic
)

// RayHit 射线检测结果
type RayHit struct {
	Body     BodyID     // 命中的动态刚体，命中静态几何体时为0
	Static   int        // 命中的静态几何体下标，命中动态刚体时为-1
	Distance float64    // 命中距离
	Point    mgl64.Vec3 // 命中点
}

func (h RayHit) String() string {
	return fmt.Sprintf("RayHit{Body=%v, Static=%v, Distance=%.3f}", h.Body, h.Static, h.Distance)
}

// BodyDesc 创建刚体的描述
type BodyDesc struct {
	Position    mgl64.Vec3
	Rotation    mgl64.Quat
	HalfExtents mgl64.Vec3 // 碰撞盒半长
	Density     float64    // 密度，质量=密度×体积
	Friction    float64    // 接触摩擦系数
}

// BodyState 刚体状态快照
type BodyState struct {
	ID          BodyID
	Position    mgl64.Vec3 // 质心位置
	Rotation    mgl64.Quat
	LinVel      mgl64.Vec3
	AngVel      mgl64.Vec3
	Mass        float64
	HalfExtents mgl64.Vec3
}

// entity/physics的依赖倒置，外部刚体动力学求解器
type IPhysicsWorld interface {
	// 刚体生命周期

	AddBody(desc BodyDesc) BodyID
	RemoveBody(id BodyID)
	// 查询刚体状态，不存在则返回false
	Body(id BodyID) (BodyState, bool)
	// 将刚体放回指定位姿并清零速度
	ResetBody(id BodyID, position mgl64.Vec3, rotation mgl64.Quat) bool
	// 更换碰撞盒尺寸，质量与转动惯量随之重新计算
	ResizeBody(id BodyID, halfExtents mgl64.Vec3) bool

	// 静态几何体

	AddStaticBox(center, halfExtents mgl64.Vec3) int

	// 查询

	// 射线检测：origin出发沿dir方向，maxDistance内最近的命中；solid为true时起点在几何体内部视为距离0
	CastRay(origin, dir mgl64.Vec3, maxDistance float64, solid bool, filter QueryFilter) (RayHit, bool)
	// 刚体速度场在point处的值
	VelocityAtPoint(linVel, angVel, point, centerOfMass mgl64.Vec3) mgl64.Vec3
	// 刚体包围盒是否与轴对齐区域相交
	Overlaps(id BodyID, center, halfExtents mgl64.Vec3) bool

	// 外力

	// 覆盖写入刚体的外力与外力矩（不累加）
	SetExternalForce(id BodyID, force, torque mgl64.Vec3) bool
	ExternalForce(id BodyID) (force, torque mgl64.Vec3, ok bool)

	// 关节：以各自局部锚点连接两个刚体的球铰
	AddSphericalJoint(a, b BodyID, anchorA, anchorB mgl64.Vec3) int

	// 积分一步
	Step(dt float64)
}

// entity/vehicle/vehicle.go的依赖倒置
type IVehicle interface {
	ID() BodyID                       // 车身刚体ID
	Name() string                     // 车辆名
	Preset() string                   // 车型预设名
	Config() config.VehicleConfig     // 当前车型参数（副本）
	Controller() (ControllerID, bool) // 绑定的控制器
	Drivable() bool                   // 是否接受悬挂、摩擦与合力处理
	Authority() bool                  // 是否具有发动机与转向控制权
	InParkingSpot() bool              // 是否位于停车位内
	String() string
}

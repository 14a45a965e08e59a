package vehicle

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"github.com/tsinghua-fib-lab/carsim-go/utils/container"
)

// Location 轮胎前后位置
type Location int

const (
	Front Location = iota
	Back
)

func (l Location) String() string {
	if l == Front {
		return "front"
	}
	return "back"
}

var (
	axisForward = mgl64.Vec3{1, 0, 0}
	axisUp      = mgl64.Vec3{0, 1, 0}
	axisLateral = mgl64.Vec3{0, 0, 1}
)

// Tire 轮胎
// 功能：挂在车身上的接地点，不单独参与刚体仿真
// 说明：所属车身只记录ID，每步重新查找
type Tire struct {
	handle container.Handle

	owner  entity.BodyID
	offset mgl64.Vec3 // 车身局部坐标系下的安装位置

	Location          Location
	ConnectedToEngine bool

	steer float64 // 当前转角（弧度，绕车身+Y，向左为正）
}

func (t *Tire) Handle() container.Handle { return t.handle }
func (t *Tire) Owner() entity.BodyID     { return t.owner }
func (t *Tire) Offset() mgl64.Vec3       { return t.offset }
func (t *Tire) Steer() float64           { return t.steer }

func (t *Tire) String() string {
	return fmt.Sprintf("Tire(%v, owner=%v, %v, engine=%v)", t.handle, t.owner, t.Location, t.ConnectedToEngine)
}

// tireSlot 轮胎布局中的一个位置
type tireSlot struct {
	offset   mgl64.Vec3
	location Location
	engine   bool
}

// tireLayout 根据车型参数计算四个轮胎的布局
// 算法说明：
// 1. 前后轴位于 WheelOffset ± Wheelbase，轮胎在车身底面（y=-Height），左右各一（z=±Width）
// 2. 只有具备控制权的车辆才有前轮，其余均视为后轮（不转向）
// 3. 按驱动形式决定哪些轮胎连接发动机
func tireLayout(c *config.VehicleConfig) []tireSlot {
	slots := make([]tireSlot, 0, 4)
	for _, front := range []bool{true, false} {
		x := c.WheelOffset - c.Wheelbase
		if front {
			x = c.WheelOffset + c.Wheelbase
		}
		location := Back
		if front && c.Authority {
			location = Front
		}
		engine := false
		if c.Authority {
			switch c.Drive {
			case config.DriveFront:
				engine = front
			case config.DriveRear:
				engine = !front
			case config.DriveAll:
				engine = true
			}
		}
		for _, z := range []float64{c.Width, -c.Width} {
			slots = append(slots, tireSlot{
				offset:   mgl64.Vec3{x, -c.Height, z},
				location: location,
				engine:   engine,
			})
		}
	}
	return slots
}

// tirePose 轮胎在当前步的世界位姿与接地状态
type tirePose struct {
	tire    *Tire
	vehicle *Vehicle
	body    entity.BodyState

	position mgl64.Vec3
	up       mgl64.Vec3 // 悬挂方向
	forward  mgl64.Vec3 // 转向后的滚动方向
	lateral  mgl64.Vec3 // 转向后的侧向
	velocity mgl64.Vec3 // 车身速度场在轮胎处的值

	hit      entity.RayHit
	grounded bool // 射线在TractionThreshold内命中
}

// poseOf 由车身状态与转角计算轮胎位姿
func poseOf(t *Tire, v *Vehicle, body entity.BodyState, world entity.IPhysicsWorld) tirePose {
	rot := body.Rotation.Mul(mgl64.QuatRotate(t.steer, axisUp))
	p := tirePose{
		tire:     t,
		vehicle:  v,
		body:     body,
		position: body.Position.Add(body.Rotation.Rotate(t.offset)),
		up:       body.Rotation.Rotate(axisUp),
		forward:  rot.Rotate(axisForward),
		lateral:  rot.Rotate(axisLateral),
	}
	p.velocity = world.VelocityAtPoint(body.LinVel, body.AngVel, p.position, body.Position)
	return p
}

// castGround 沿轮胎向下检测静态地面，结果写入pose
func (p *tirePose) castGround(world entity.IPhysicsWorld) {
	threshold := p.vehicle.cfg.TractionThreshold()
	hit, ok := world.CastRay(p.position, p.up.Mul(-1), threshold, true, entity.QueryFixed)
	p.hit = hit
	p.grounded = ok
}

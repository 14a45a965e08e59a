package clock

import (
	"fmt"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
)

// Clock 仿真时钟
// 功能：管理固定步长的时间推进，支持子循环以减小物理积分步长
// 说明：外部可见的一步对应SUBLOOP个内部步，每个内部步时长DT
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT         float64 // 每个内部步时间间隔（秒）
	SUBLOOP    int32   // 每个外部步内部循环次数
	START_STEP int32   // 起始内部步
	END_STEP   int32   // 结束内部步，模拟区间[START, END)

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前内部步数
}

// New 根据配置创建时钟
// 参数：stepConfig-控制步配置
// 算法说明：
// 1. 子循环数缺省为1
// 2. dt = interval / subloop
// 3. 起止步数按子循环数放大
func New(stepConfig config.ControlStep) *Clock {
	subloop := stepConfig.Subloop
	if subloop <= 0 {
		subloop = 1
	}
	c := &Clock{
		DT:         stepConfig.Interval / float64(subloop),
		SUBLOOP:    subloop,
		START_STEP: stepConfig.Start * subloop,
		END_STEP:   (stepConfig.Start + stepConfig.Total) * subloop,
	}
	c.Init()
	return c
}

// Init 重置到起始步
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
}

// Tick 推进一个内部步
func (c *Clock) Tick() {
	c.InternalStep++
	c.T = float64(c.InternalStep) * c.DT
}

// Done 是否已到达结束步
func (c *Clock) Done() bool {
	return c.InternalStep >= c.END_STEP
}

// ExternalStep 外部步数
func (c *Clock) ExternalStep() int32 {
	return c.InternalStep / c.SUBLOOP
}

// NoInSubloop 当前是否处于外部步的边界
func (c *Clock) NoInSubloop() bool {
	return c.InternalStep%c.SUBLOOP == 0
}

// String 格式化为 MM:SS.mmm
func (c *Clock) String() string {
	m, s := c.GetMinuteSecond()
	return fmt.Sprintf("%02d:%06.3f", m, s)
}

// GetMinuteSecond 当前时间的分钟与秒
func (c *Clock) GetMinuteSecond() (int, float64) {
	minute := int(c.T) / 60
	return minute, c.T - float64(minute*60)
}

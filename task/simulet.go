package task

import (
	"flag"
	"time"
)

const (
	SelfName = "carsim" // 本程序在模拟任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 600, "心跳日志间隔步数")
)

// prepare 准备阶段，每步执行一次
// 功能：在每个仿真步骤开始时进行准备工作
// 算法说明：
// 1. 更新时钟：增加内部步数并计算当前时间
// 2. 心跳日志：定期输出系统状态信息
// 3. 车辆管理器准备：车辆增删、尺寸重建、停车位检测
func (ctx *Context) prepare() {
	log.Debugf("step %d complete, +1", ctx.clock.InternalStep)
	ctx.clock.Tick()

	if ctx.clock.InternalStep%int32(*heartBeatInterval) == 0 {
		minute, second := ctx.clock.GetMinuteSecond()
		log.Infof(
			"STEP: %d(%d:%.2f) vehicles=%d",
			ctx.clock.InternalStep,
			minute, second,
			len(ctx.vehicleManager.Vehicles()),
		)
	}

	ctx.VehicleManager().Prepare()
}

// update 更新阶段，每步执行一次
// 功能：计算车辆受力并推进物理世界
// 说明：车辆管理器是外力槽的唯一写入者，物理积分在其之后
func (ctx *Context) update() {
	ctx.VehicleManager().Update(ctx.clock.DT)
	ctx.world.Step(ctx.clock.DT)
}

// pace 按墙上时钟节奏等待
// 参数：start-仿真开始时的墙上时间，t0-仿真开始时的仿真时间
func (ctx *Context) pace(start time.Time, t0 float64) {
	if !ctx.runtimeConfig.C.Step.Realtime {
		return
	}
	target := start.Add(time.Duration((ctx.clock.T - t0) * float64(time.Second)))
	if d := time.Until(target); d > 0 {
		time.Sleep(d)
	}
}

// Run 运行
func (ctx *Context) Run() {
	// 初始化
	ctx.Init()
	// init syncer
	ctx.sidecar.Step(false)
	start, t0 := time.Now(), ctx.clock.T
	for {
		ctx.prepare()
		// 通知准备阶段完成
		log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
		ctx.sidecar.NotifyStepReady()
		log.Debugf("step %d: NotifyStepReady complete", ctx.clock.InternalStep)
		ctx.update()
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		ctx.pace(start, t0)
		close := false
		if ctx.clock.InternalStep+1 >= ctx.clock.END_STEP {
			close = ctx.sidecar.Step(true)
		} else {
			close = ctx.sidecar.Step(false)
		}
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	ctx.Close()
}

// RunSteps 不经过sidecar直接推进n步，用于离线运行与测试
func (ctx *Context) RunSteps(n int) {
	for range n {
		if ctx.clock.Done() {
			return
		}
		ctx.prepare()
		ctx.update()
	}
}

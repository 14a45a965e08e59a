package task

import (
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/carsim-go/clock"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/entity/physics"
	"github.com/tsinghua-fib-lab/carsim-go/entity/vehicle"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"github.com/tsinghua-fib-lab/carsim-go/utils/input"
)

var log = logrus.WithField("module", "task")

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态
// 说明：管理仿真系统的所有组件，包括时钟、物理世界、车辆管理器与配置
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理分布式模式下相关调用，包括与syncer、其他服务的交互
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 是否启动了sidecar服务
	serving bool
	// 缓存文件夹
	cacheDir string

	// 物理世界
	world *physics.World
	// 车辆管理器
	vehicleManager *vehicle.VehicleManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的输入
	initRes *input.Input
}

// NewContext 创建新的仿真任务上下文
// 功能：初始化仿真系统的所有组件和配置
// 参数：
//   - job: 任务名称
//   - cacheDir: 缓存目录
//   - c: 配置对象
//   - sidecar: 外部sidecar实例
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例
// 算法说明：
// 1. 创建Context实例并设置基本属性
// 2. 初始化时钟与运行时配置
// 3. 下载车型预设
// 4. 创建物理世界与车辆管理器
// 5. 注册RPC服务到sidecar
// 6. 启动sidecar服务（如果需要）
func NewContext(
	job string,
	cacheDir string,
	c config.Config,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		cacheDir:       cacheDir,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		serving:        startSidecarServe,
	}
	ctx.runtimeConfig = config.NewRuntimeConfig(c)
	ctx.clock = clock.New(ctx.runtimeConfig.C.Step)

	// 下载所有模拟器启动所需的数据
	ctx.initRes = input.Init(c, ctx.cacheDir)

	// 新建各类模拟对象
	ctx.world = physics.New(ctx.runtimeConfig.C.Physics.Gravity)
	ctx.vehicleManager = vehicle.NewManager(ctx)

	if ctx.sidecar != nil {
		ctx.clock.Register(ctx.sidecar)
		ctx.VehicleManager().Register(ctx.sidecar)
	}

	// sidecar协程，用于提供gRPC服务
	if startSidecarServe {
		go func() {
			err := ctx.sidecar.Serve()
			if err != nil {
				log.Panicf("failed to serve: %v", err)
			}
			ctx.sidecarCloseCh <- struct{}{}
		}()
	}

	return ctx
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) World() entity.IPhysicsWorld {
	return ctx.world
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Init 初始化
// 功能：重置时钟，搭建场景并生成初始车辆
func (ctx *Context) Init() {
	ctx.clock.Init()

	n := buildTerrain(ctx.world, ctx.runtimeConfig.W)
	log.Infof("Static boxes: %v", n)
	log.Infof("Presets: %v", len(ctx.initRes.Presets))
	log.Infof("Vehicles: %v", len(ctx.runtimeConfig.All.Vehicles))

	ctx.VehicleManager().Init(ctx.initRes.Presets, ctx.runtimeConfig.All.Vehicles)
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
	}
	// wait for graceful stop
	if ctx.serving {
		<-ctx.sidecarCloseCh
	}
	ctx.closed.Store(true)
}

package task

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"github.com/tsinghua-fib-lab/carsim-go/utils/randengine"
)

// buildTerrain 搭建静态场景
// 功能：地面与随机凸起
// 参数：world-物理世界，w-场景配置（缺省值已补全）
// 返回：静态几何体数量
// 算法说明：
// 1. 地面：顶面位于y=0的薄盒
// 2. 凸起：按种子均匀采样位置、尺寸与高度，盒中心位于y=0，露出地面的高度即半高
// 说明：停车位只是检测区域，不产生静态几何体
func buildTerrain(world entity.IPhysicsWorld, w config.World) int {
	world.AddStaticBox(mgl64.Vec3{0, -w.GroundHeight, 0}, mgl64.Vec3{w.GroundSize, w.GroundHeight, w.GroundSize})
	n := 1
	if b := w.Bumps; b != nil && b.Count > 0 && b.Size > 0 && b.MaxHeight > 0 {
		engine := randengine.New(b.Seed)
		extent := max(w.GroundSize-b.Size, 0)
		for range b.Count {
			center := mgl64.Vec3{engine.Uniform(-extent, extent), 0, engine.Uniform(-extent, extent)}
			half := mgl64.Vec3{
				engine.Uniform(b.Size/2, b.Size),
				engine.Uniform(b.MaxHeight/4, b.MaxHeight),
				engine.Uniform(b.Size/2, b.Size),
			}
			world.AddStaticBox(center, half)
			n++
		}
	}
	return n
}

package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
)

const rayEpsilon = 1e-12

// rayAABB 射线与轴对齐盒求交（slab方法）
// 返回：进入与离开参数tmin、tmax，无交点或盒在起点后方时ok为false
func rayAABB(origin, dir, min, max mgl64.Vec3) (tmin, tmax float64, ok bool) {
	tmin, tmax = math.Inf(-1), math.Inf(1)
	for i := range 3 {
		if math.Abs(dir[i]) < rayEpsilon {
			if origin[i] < min[i] || origin[i] > max[i] {
				return 0, 0, false
			}
			continue
		}
		t1 := (min[i] - origin[i]) / dir[i]
		t2 := (max[i] - origin[i]) / dir[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, 0, false
		}
	}
	if tmax < 0 {
		return 0, 0, false
	}
	return tmin, tmax, true
}

// hitDistance 起点在盒内时，solid为true返回0，否则返回离开距离
func hitDistance(tmin, tmax float64, solid bool) float64 {
	if tmin >= 0 {
		return tmin
	}
	if solid {
		return 0
	}
	return tmax
}

// CastRay 射线检测
// 功能：返回maxDistance内最近的命中
// 参数：origin-起点，dir-方向（内部归一化），maxDistance-最大距离，solid-起点在几何体内部是否视为命中距离0，filter-检测对象
// 算法说明：
// 1. 静态几何体直接按轴对齐盒求交
// 2. 动态刚体将射线变换到刚体局部坐标系后按轴对齐盒求交
// 3. 取距离最小且不超过maxDistance的结果
func (w *World) CastRay(origin, dir mgl64.Vec3, maxDistance float64, solid bool, filter entity.QueryFilter) (entity.RayHit, bool) {
	if dir.Len() < rayEpsilon || maxDistance < 0 {
		return entity.RayHit{}, false
	}
	dir = dir.Normalize()
	best := entity.RayHit{Static: -1, Distance: math.Inf(1)}
	found := false
	if filter&entity.QueryFixed != 0 {
		for i, s := range w.statics {
			tmin, tmax, ok := rayAABB(origin, dir, s.min, s.max)
			if !ok {
				continue
			}
			d := hitDistance(tmin, tmax, solid)
			if d <= maxDistance && d < best.Distance {
				best = entity.RayHit{Static: i, Distance: d}
				found = true
			}
		}
	}
	if filter&entity.QueryDynamic != 0 {
		for _, id := range w.order {
			b := w.bodies[id]
			inv := b.rotation.Inverse()
			localOrigin := inv.Rotate(origin.Sub(b.position))
			localDir := inv.Rotate(dir)
			tmin, tmax, ok := rayAABB(localOrigin, localDir, b.halfExtents.Mul(-1), b.halfExtents)
			if !ok {
				continue
			}
			d := hitDistance(tmin, tmax, solid)
			if d <= maxDistance && d < best.Distance {
				best = entity.RayHit{Body: id, Static: -1, Distance: d}
				found = true
			}
		}
	}
	if !found {
		return entity.RayHit{}, false
	}
	best.Point = origin.Add(dir.Mul(best.Distance))
	return best, true
}

package vehicle

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
)

// ForceKind 受力来源
type ForceKind int

const (
	ForceSuspension ForceKind = iota
	ForceDrive
	ForceFriction
	ForceCornering
)

func (k ForceKind) String() string {
	switch k {
	case ForceSuspension:
		return "suspension"
	case ForceDrive:
		return "drive"
	case ForceFriction:
		return "friction"
	case ForceCornering:
		return "cornering"
	default:
		return fmt.Sprintf("ForceKind(%d)", int(k))
	}
}

// ForceContribution 单个轮胎在当前步产生的一个作用力
type ForceContribution struct {
	Force mgl64.Vec3    // 世界坐标系下的力
	Point mgl64.Vec3    // 世界坐标系下的作用点
	Body  entity.BodyID // 所属车身
	Kind  ForceKind
}

func (c ForceContribution) String() string {
	return fmt.Sprintf("%v@%v %v at %v", c.Kind, c.Body, c.Force, c.Point)
}

// Buffer 一步内的作用力缓冲区
// 功能：各受力计算往里写，合力计算时一次性取走
type Buffer struct {
	items []ForceContribution
}

func (b *Buffer) Add(c ForceContribution) {
	b.items = append(b.items, c)
}

func (b *Buffer) Len() int {
	return len(b.items)
}

// Drain 取走全部作用力并清空缓冲区
func (b *Buffer) Drain() []ForceContribution {
	items := b.items
	b.items = nil
	return items
}

package container

import (
	"fmt"
	"sync"
)

// Handle 竞技场中元素的句柄
// 功能：以槽位下标加代数唯一标识一个元素，槽位复用后旧句柄自动失效
type Handle struct {
	Index uint32 // 槽位下标
	Gen   uint32 // 槽位代数，每次删除加1
}

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.Index, h.Gen)
}

type slot[T any] struct {
	value    T
	gen      uint32
	live     bool // 已生效
	reserved bool // 已分配（包括等待生效）
}

// Arena 支持增量维护的竞技场（arena）容器
// 功能：按句柄存取元素，增删操作延迟到Prepare时统一生效
// 说明：用句柄代替指针引用，被删除元素的旧句柄查询失败而不会悬空
type Arena[T any] struct {
	slots  []slot[T]
	free   []uint32 // 可复用的空槽位
	add    []uint32 // 待生效的槽位
	remove []Handle // 待删除的句柄
	mtx    sync.Mutex
}

// NewArena 创建竞技场
func NewArena[T any]() *Arena[T] {
	return &Arena[T]{
		slots:  make([]slot[T], 0),
		free:   make([]uint32, 0),
		add:    make([]uint32, 0),
		remove: make([]Handle, 0),
	}
}

// Add 增加元素（等到Prepare时才会真正生效）
// 功能：立即分配槽位并返回句柄，元素在下一次Prepare前对Get不可见
// 参数：value-要添加的元素
// 返回：新元素的句柄
func (a *Arena[T]) Add(value T) Handle {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}
	s := &a.slots[index]
	s.value = value
	s.reserved = true
	s.live = false
	a.add = append(a.add, index)
	return Handle{Index: index, Gen: s.gen}
}

// Remove 删除元素（等到Prepare时才会真正删除）
// 参数：h-要删除的元素句柄
func (a *Arena[T]) Remove(h Handle) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.remove = append(a.remove, h)
}

// Prepare 执行增量操作
// 功能：统一执行所有待处理的添加和删除操作
// 算法说明：
// 1. 先使所有待添加元素生效
// 2. 再删除所有待删除元素：代数加1，槽位归还空闲列表
// 3. 重复删除或代数不匹配的句柄被忽略
// 4. 清空待处理列表
func (a *Arena[T]) Prepare() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	for _, index := range a.add {
		if a.slots[index].reserved {
			a.slots[index].live = true
		}
	}
	for _, h := range a.remove {
		if int(h.Index) >= len(a.slots) {
			continue
		}
		s := &a.slots[h.Index]
		if !s.reserved || s.gen != h.Gen {
			continue
		}
		var zero T
		s.value = zero
		s.live = false
		s.reserved = false
		s.gen++
		a.free = append(a.free, h.Index)
	}
	a.add = []uint32{}
	a.remove = []Handle{}
}

// Get 按句柄查找已生效的元素
// 返回：元素与是否存在
func (a *Arena[T]) Get(h Handle) (T, bool) {
	if int(h.Index) >= len(a.slots) {
		var zero T
		return zero, false
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		var zero T
		return zero, false
	}
	return s.value, true
}

// Len 获取已生效元素数量
func (a *Arena[T]) Len() int {
	n := 0
	for i := range a.slots {
		if a.slots[i].live {
			n++
		}
	}
	return n
}

// Each 按槽位顺序遍历所有已生效元素
// 参数：fn-回调函数，返回false时停止遍历
func (a *Arena[T]) Each(fn func(h Handle, value T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if !fn(Handle{Index: uint32(i), Gen: s.gen}, s.value) {
			return
		}
	}
}

// Data 获取所有已生效元素（按槽位顺序）
func (a *Arena[T]) Data() []T {
	data := make([]T, 0, len(a.slots))
	a.Each(func(_ Handle, value T) bool {
		data = append(data, value)
		return true
	})
	return data
}

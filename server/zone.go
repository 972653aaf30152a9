package server

import "math"

// ZoneAllocator 为房间内的玩家分配扇区编号（纯记账，无并发保护，由房间协程独占）
type ZoneAllocator struct {
	used  []bool
	count int
}

func NewZoneAllocator(capacity int) *ZoneAllocator {
	return &ZoneAllocator{used: make([]bool, capacity)}
}

// Allocate 返回最小的空闲编号；已满返回 ErrRoomFull 且不改变任何状态
func (z *ZoneAllocator) Allocate() (int, error) {
	for i, taken := range z.used {
		if !taken {
			z.used[i] = true
			z.count++
			return i, nil
		}
	}
	return -1, ErrRoomFull
}

// Release 释放编号；越界或未分配时为 no-op（断线与出错路径都会调用）
func (z *ZoneAllocator) Release(zone int) {
	if zone < 0 || zone >= len(z.used) || !z.used[zone] {
		return
	}
	z.used[zone] = false
	z.count--
}

// Occupied 按升序返回已占用编号
func (z *ZoneAllocator) Occupied() []int {
	out := make([]int, 0, z.count)
	for i, taken := range z.used {
		if taken {
			out = append(out, i)
		}
	}
	return out
}

func (z *ZoneAllocator) Len() int      { return z.count }
func (z *ZoneAllocator) Capacity() int { return len(z.used) }

// ZoneCenterAngle 扇区中心方向（弧度）；zone 0 朝下方 -π/2，按 2π/n 依次旋转
func ZoneCenterAngle(zone, n int) float64 {
	if n <= 0 {
		n = 1
	}
	return -math.Pi/2 + float64(zone)*2*math.Pi/float64(n)
}

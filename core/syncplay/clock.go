package syncplay

import "time"

// 时间换算：1 tick = 100ns，和媒体位置保持同一精度
const (
	TicksPerMillisecond int64 = 10_000
	TicksPerSecond      int64 = 10_000_000
)

// Clock 统一的时间来源，便于测试注入虚拟时钟
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock 默认使用系统 UTC 时间
var SystemClock Clock = systemClock{}

// DurationToTicks 将时长转换为 tick 数
func DurationToTicks(d time.Duration) int64 {
	return d.Nanoseconds() / 100
}

// TicksToDuration 将 tick 数转换为时长
func TicksToDuration(ticks int64) time.Duration {
	return time.Duration(ticks * 100)
}

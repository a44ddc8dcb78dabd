package engine

import (
	"time"

	"github.com/yuqie6/cyclecal/internal/schema"
)

const (
	// ValidDaysTarget 周期累计满这个有效天数后自动完成
	ValidDaysTarget = 26
	// ValidHoursCap 有效小时数上限（26 × 24）
	ValidHoursCap = float64(ValidDaysTarget) * 24
)

// RolloverDecision 周期关闭决定：当前周期在 ClosedAt 关闭，Successor 为待创建的后继周期。
// 纯数据，持久化由调用方负责。
type RolloverDecision struct {
	ClosedAt  time.Time
	Successor *schema.Cycle
}

// MaybeRollover 根据最新一次核算结果判断周期是否应当关闭。
// 只有进行中的周期在有效天数达到目标时才触发；不满足条件返回 nil。
// 决定本身不落库——下一次核算成功时会重新评估，所以错过一次触发并无大碍。
func MaybeRollover(cycle *schema.Cycle, validDays int, validHours float64, settings *schema.CalendarSettings, now time.Time) *RolloverDecision {
	if cycle == nil || cycle.IsCompleted {
		return nil
	}
	if validDays < ValidDaysTarget {
		return nil
	}
	return &RolloverDecision{
		ClosedAt:  now,
		Successor: NewSuccessor(cycle, settings, now),
	}
}

// NewSuccessor 构造后继周期：编号 +1，计数清零，开始时间取关闭当天配置的起始时刻。
// 没有设置时退化为直接使用当前时间。
func NewSuccessor(prev *schema.Cycle, settings *schema.CalendarSettings, now time.Time) *schema.Cycle {
	startAt := now
	if settings != nil {
		y, m, d := now.Date()
		startAt = time.Date(y, m, d, settings.StartHour, settings.StartMinute, 0, 0, now.Location())
	}
	return &schema.Cycle{
		CycleNumber:     prev.CycleNumber + 1,
		StartAt:         startAt,
		ValidDaysCount:  0,
		ValidHoursCount: 0,
		IsCompleted:     false,
	}
}

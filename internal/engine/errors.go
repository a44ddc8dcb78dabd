package engine

import (
	"errors"
	"fmt"
	"time"
)

// ErrCycleAlreadyOpen 已存在进行中的周期时，手动创建被拒绝。
var ErrCycleAlreadyOpen = errors.New("已存在一个进行中的周期，请先完成当前周期")

// MalformedSkipWindowError HH:MM 时间串无法解析或超出取值范围。
// 校验阶段必须拒绝写入，避免坏数据进入计算。
type MalformedSkipWindowError struct {
	Value  string
	Reason string
}

func (e *MalformedSkipWindowError) Error() string {
	return fmt.Sprintf("无效的时间格式 %q: %s", e.Value, e.Reason)
}

// RangeViolationKind 跳过日期越界的方向
type RangeViolationKind string

const (
	RangeTooEarly RangeViolationKind = "too_early"
	RangeTooLate  RangeViolationKind = "too_late"
)

// RangeViolationError 跳过日期落在周期边界之外。
// 同时携带违规日期与边界值，便于调用方提示用户。
type RangeViolationError struct {
	Kind  RangeViolationKind
	Date  time.Time
	Bound time.Time
}

func (e *RangeViolationError) Error() string {
	if e.Kind == RangeTooEarly {
		return fmt.Sprintf("跳过日期 %s 不能在周期开始日期 %s 之前",
			e.Date.Format("2006-01-02"), e.Bound.Format("2006-01-02"))
	}
	return fmt.Sprintf("跳过日期 %s 不能在周期结束日期 %s 之后",
		e.Date.Format("2006-01-02"), e.Bound.Format("2006-01-02"))
}

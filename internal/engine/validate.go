package engine

import (
	"time"

	"github.com/yuqie6/cyclecal/internal/schema"
)

// ValidateSkipPeriod 校验跳过日期是否落在周期范围内，在写入之前调用。
// 早于周期开始日返回 too_early；周期已完成且晚于结束日返回 too_late。
// 进行中的周期没有上界，允许登记到今天为止的任意日期。
func ValidateSkipPeriod(cycle *schema.Cycle, date time.Time) error {
	skipDay := DateOnly(date)
	startDay := DateOnly(cycle.StartAt)
	if skipDay.Before(startDay) {
		return &RangeViolationError{Kind: RangeTooEarly, Date: skipDay, Bound: startDay}
	}
	if cycle.IsCompleted && cycle.EndAt != nil {
		endDay := DateOnly(*cycle.EndAt)
		if skipDay.After(endDay) {
			return &RangeViolationError{Kind: RangeTooLate, Date: skipDay, Bound: endDay}
		}
	}
	return nil
}

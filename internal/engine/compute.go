package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/yuqie6/cyclecal/internal/schema"
)

// ComputeValidTime 计算周期截至 asOf 时刻累计的有效天数与有效小时数。
//
// asOf 为零值时：已完成的周期取 EndAt，进行中的周期取当前时间。
// 纯函数，不做任何写入；相同输入必然得到相同输出。
//
// 规则：
//  1. 总小时数 = asOf - StartAt（保留小数）；周期尚未开始时直接返回 (0, 0)。
//  2. 逐条展开跳过时段为绝对区间，裁剪到 [StartAt, asOf] 内后累加；
//     日期落在周期范围之外的记录整条忽略（防御性复查，周期边界可能被事后编辑过）。
//  3. 有效小时 = max(0, 总小时 - 跳过小时)；有效天数 = ceil(有效小时 / 24)。
//  4. 封顶 26 天 / 624 小时，且达到 26 天时小时数强制写满，保证两个字段不打架。
//
// 单条记录解析或计算出错只丢弃该条并告警，不中断整个周期的核算。
func ComputeValidTime(cycle *schema.Cycle, periods []schema.SkipPeriod, asOf time.Time) (validDays int, validHours float64) {
	if cycle == nil {
		return 0, 0
	}

	end := asOf
	if end.IsZero() {
		if cycle.IsCompleted && cycle.EndAt != nil {
			end = *cycle.EndAt
		} else {
			end = time.Now()
		}
	}

	if end.Before(cycle.StartAt) {
		// 周期尚未开始，不算错误
		return 0, 0
	}

	totalHours := end.Sub(cycle.StartAt).Hours()

	var skippedHours float64
	for _, p := range periods {
		if !periodDateInRange(cycle, p.Date) {
			slog.Warn("跳过时段日期不在周期范围内，忽略",
				"skip_period_id", p.ID, "date", p.Date.Format("2006-01-02"))
			continue
		}

		winStart, winEnd, err := ResolveSkipWindow(p.Date, p.StartTime, p.EndTime)
		if err != nil {
			slog.Warn("跳过时段时间串无法解析，忽略该条记录",
				"skip_period_id", p.ID, "start_time", p.StartTime, "end_time", p.EndTime, "error", err)
			continue
		}

		hours, overlapped := ClipHours(winStart, winEnd, cycle.StartAt, end)
		if !overlapped {
			continue
		}
		skippedHours += hours
	}

	validHours = totalHours - skippedHours
	if validHours < 0 {
		validHours = 0
	}

	if validHours > 0 {
		validDays = int(math.Ceil(validHours / 24))
	}

	if validHours > ValidHoursCap {
		validHours = ValidHoursCap
	}
	if validDays >= ValidDaysTarget {
		validDays = ValidDaysTarget
		validHours = ValidHoursCap
	}
	return validDays, validHours
}

// periodDateInRange 防御性复查：跳过时段的日期必须不早于周期开始日；
// 已完成的周期还要求不晚于结束日。独立于写入时的校验，因为周期边界可能被编辑过。
func periodDateInRange(cycle *schema.Cycle, date time.Time) bool {
	day := DateOnly(date)
	if day.Before(DateOnly(cycle.StartAt)) {
		return false
	}
	if cycle.IsCompleted && cycle.EndAt != nil && day.After(DateOnly(*cycle.EndAt)) {
		return false
	}
	return true
}

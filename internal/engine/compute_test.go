package engine

import (
	"testing"
	"time"

	"github.com/yuqie6/cyclecal/internal/schema"
)

func newOpenCycle(startAt time.Time) *schema.Cycle {
	return &schema.Cycle{ID: 1, CycleNumber: 1, StartAt: startAt}
}

func skipOn(day int, start, end string) schema.SkipPeriod {
	return schema.SkipPeriod{
		CycleID:   1,
		Date:      time.Date(2025, 1, day, 12, 0, 0, 0, time.Local),
		StartTime: start,
		EndTime:   end,
	}
}

func TestComputeValidTimeNoSkipPeriods(t *testing.T) {
	// 没有跳过时段时，有效小时数等于经过的墙钟小时数
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 3, 8, 0, 0, 0, time.Local)
	days, hours := ComputeValidTime(newOpenCycle(start), nil, asOf)
	if days != 2 || hours != 48 {
		t.Fatalf("got (%d, %v), want (2, 48)", days, hours)
	}
}

func TestComputeValidTimeWithOvernightSkip(t *testing.T) {
	// 01-02 20:00 到 01-03 08:00 共 12 小时被跳过
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 3, 8, 0, 0, 0, time.Local)
	periods := []schema.SkipPeriod{skipOn(2, "20:00", "08:00")}
	days, hours := ComputeValidTime(newOpenCycle(start), periods, asOf)
	if hours != 36 {
		t.Fatalf("hours=%v, want 36", hours)
	}
	if days != 2 {
		t.Fatalf("days=%d, want 2", days)
	}
}

func TestComputeValidTimeBeforeStart(t *testing.T) {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 5, 8, 0, 0, 0, time.Local)
	days, hours := ComputeValidTime(newOpenCycle(start), nil, asOf)
	if days != 0 || hours != 0 {
		t.Fatalf("周期未开始应返回 (0, 0)，got (%d, %v)", days, hours)
	}
}

func TestComputeValidTimeSkipOutsideRangeIgnored(t *testing.T) {
	start := time.Date(2025, 1, 10, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 12, 8, 0, 0, 0, time.Local)
	// 日期早于周期开始日的记录整条忽略，不影响核算
	periods := []schema.SkipPeriod{skipOn(5, "20:00", "08:00")}
	days, hours := ComputeValidTime(newOpenCycle(start), periods, asOf)
	if days != 2 || hours != 48 {
		t.Fatalf("got (%d, %v), want (2, 48)", days, hours)
	}
}

func TestComputeValidTimeSkipNoOverlapContributesZero(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 2, 8, 0, 0, 0, time.Local)
	// 日期合法但窗口整段落在 asOf 之后，裁剪后无重叠
	periods := []schema.SkipPeriod{skipOn(3, "08:00", "20:00")}
	days, hours := ComputeValidTime(newOpenCycle(start), periods, asOf)
	if days != 1 || hours != 24 {
		t.Fatalf("got (%d, %v), want (1, 24)", days, hours)
	}
}

func TestComputeValidTimeMalformedPeriodDegradesGracefully(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 3, 8, 0, 0, 0, time.Local)
	periods := []schema.SkipPeriod{
		skipOn(2, "bad", "08:00"),   // 坏记录，只丢弃这一条
		skipOn(1, "20:00", "22:00"), // 正常记录照常计入
	}
	days, hours := ComputeValidTime(newOpenCycle(start), periods, asOf)
	if hours != 46 {
		t.Fatalf("hours=%v, want 46", hours)
	}
	if days != 2 {
		t.Fatalf("days=%d, want 2", days)
	}
}

func TestComputeValidTimeCeilingRounding(t *testing.T) {
	// 25 小时 → 2 天（向上取整，开始的一天算一个有效天）
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 2, 9, 0, 0, 0, time.Local)
	days, hours := ComputeValidTime(newOpenCycle(start), nil, asOf)
	if hours != 25 || days != 2 {
		t.Fatalf("got (%d, %v), want (2, 25)", days, hours)
	}
}

func TestComputeValidTimeClamping(t *testing.T) {
	// 40 天的墙钟时间也封顶在 26 天 / 624 小时，且两个字段在顶点处一致
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := start.AddDate(0, 0, 40)
	days, hours := ComputeValidTime(newOpenCycle(start), nil, asOf)
	if days != ValidDaysTarget {
		t.Fatalf("days=%d, want %d", days, ValidDaysTarget)
	}
	if hours != ValidHoursCap {
		t.Fatalf("hours=%v, want %v", hours, ValidHoursCap)
	}
}

func TestComputeValidTimeMonotonicInAsOf(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	periods := []schema.SkipPeriod{
		skipOn(2, "20:00", "08:00"),
		skipOn(5, "22:00", "06:00"),
	}
	cycle := newOpenCycle(start)
	prevDays := 0
	for i := 0; i <= 40*24; i += 6 {
		asOf := start.Add(time.Duration(i) * time.Hour)
		days, _ := ComputeValidTime(cycle, periods, asOf)
		if days < prevDays {
			t.Fatalf("asOf=%v 时有效天数 %d 小于之前的 %d，违反单调性", asOf, days, prevDays)
		}
		prevDays = days
	}
}

func TestComputeValidTimeIdempotent(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	asOf := time.Date(2025, 1, 20, 14, 30, 0, 0, time.Local)
	periods := []schema.SkipPeriod{skipOn(2, "20:00", "08:00")}
	cycle := newOpenCycle(start)

	d1, h1 := ComputeValidTime(cycle, periods, asOf)
	d2, h2 := ComputeValidTime(cycle, periods, asOf)
	if d1 != d2 || h1 != h2 {
		t.Fatalf("相同输入得到不同结果: (%d, %v) vs (%d, %v)", d1, h1, d2, h2)
	}
}

func TestComputeValidTimeCompletedCycleUsesEndAt(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	end := time.Date(2025, 1, 4, 8, 0, 0, 0, time.Local)
	cycle := newOpenCycle(start)
	cycle.IsCompleted = true
	cycle.EndAt = &end

	days, hours := ComputeValidTime(cycle, nil, time.Time{})
	if days != 3 || hours != 72 {
		t.Fatalf("got (%d, %v), want (3, 72)", days, hours)
	}
}

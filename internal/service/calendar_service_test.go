package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yuqie6/cyclecal/internal/engine"
	"github.com/yuqie6/cyclecal/internal/eventbus"
	"github.com/yuqie6/cyclecal/internal/repository"
	"github.com/yuqie6/cyclecal/internal/testutil"
	"gorm.io/gorm"
)

type testEnv struct {
	db           *gorm.DB
	settingsRepo *repository.SettingsRepository
	cycleRepo    *repository.CycleRepository
	skipRepo     *repository.SkipPeriodRepository
	calendar     *CalendarService
	cycles       *CycleService
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	db := testutil.OpenTestDB(t)
	settingsRepo := repository.NewSettingsRepository(db)
	cycleRepo := repository.NewCycleRepository(db)
	skipRepo := repository.NewSkipPeriodRepository(db)
	hub := eventbus.NewHub()

	calendar := NewCalendarService(settingsRepo, cycleRepo, skipRepo, hub)
	calendar.now = func() time.Time { return now }
	cycles := NewCycleService(settingsRepo, cycleRepo, skipRepo, calendar, hub)
	cycles.now = func() time.Time { return now }

	return &testEnv{
		db:           db,
		settingsRepo: settingsRepo,
		cycleRepo:    cycleRepo,
		skipRepo:     skipRepo,
		calendar:     calendar,
		cycles:       cycles,
	}
}

func TestUpdateSettingsBootstrapsFirstCycle(t *testing.T) {
	now := time.Date(2025, 1, 3, 10, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	startAt := time.Date(2025, 1, 1, 20, 30, 0, 0, time.Local)
	settings, err := env.calendar.UpdateSettings(ctx, startAt, 12)
	if err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	if settings.StartHour != 20 || settings.StartMinute != 30 {
		t.Fatalf("settings=%+v, want 20:30", settings)
	}

	open, err := env.cycleRepo.FindOpen(ctx)
	if err != nil || open == nil {
		t.Fatalf("首次配置应创建第一个周期: %v %v", open, err)
	}
	if open.CycleNumber != 1 || !open.StartAt.Equal(startAt) {
		t.Fatalf("第一个周期=%+v, want number 1 start %v", open, startAt)
	}
}

func TestUpdateSettingsSyncsOpenCycleStart(t *testing.T) {
	now := time.Date(2025, 1, 5, 10, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	first := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	if _, err := env.calendar.UpdateSettings(ctx, first, 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}

	moved := time.Date(2025, 1, 2, 9, 0, 0, 0, time.Local)
	if _, err := env.calendar.UpdateSettings(ctx, moved, 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}

	open, _ := env.cycleRepo.FindOpen(ctx)
	if !open.StartAt.Equal(moved) {
		t.Fatalf("周期开始时间=%v, want %v", open.StartAt, moved)
	}
	// 2025-01-02 09:00 → 01-05 10:00 共 73 小时
	if open.ValidHoursCount != 73 {
		t.Fatalf("valid_hours=%v, want 73", open.ValidHoursCount)
	}
	if open.ValidDaysCount != 4 {
		t.Fatalf("valid_days=%d, want 4", open.ValidDaysCount)
	}
}

func TestSetSkipPeriodRecomputesCounters(t *testing.T) {
	now := time.Date(2025, 1, 3, 8, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	startAt := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	if _, err := env.calendar.UpdateSettings(ctx, startAt, 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	open, _ := env.cycleRepo.FindOpen(ctx)

	period, err := env.calendar.SetSkipPeriod(ctx, open.ID, "2025-01-02", "20:00", "08:00")
	if err != nil {
		t.Fatalf("SetSkipPeriod error: %v", err)
	}
	if period.ID == 0 {
		t.Fatalf("跳过时段未落库: %+v", period)
	}

	got, _ := env.cycleRepo.GetByID(ctx, open.ID)
	// 48 小时经过，扣除 12 小时跨天窗口
	if got.ValidHoursCount != 36 {
		t.Fatalf("valid_hours=%v, want 36", got.ValidHoursCount)
	}
	if got.ValidDaysCount != 2 {
		t.Fatalf("valid_days=%d, want 2", got.ValidDaysCount)
	}
}

func TestSetSkipPeriodTooEarlyLeavesDataUntouched(t *testing.T) {
	now := time.Date(2025, 1, 12, 8, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	startAt := time.Date(2025, 1, 10, 8, 0, 0, 0, time.Local)
	if _, err := env.calendar.UpdateSettings(ctx, startAt, 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	open, _ := env.cycleRepo.FindOpen(ctx)
	before, _ := env.cycleRepo.GetByID(ctx, open.ID)

	_, err := env.calendar.SetSkipPeriod(ctx, open.ID, "2025-01-05", "20:00", "08:00")
	var rv *engine.RangeViolationError
	if !errors.As(err, &rv) || rv.Kind != engine.RangeTooEarly {
		t.Fatalf("err=%v, want RangeViolationError{too_early}", err)
	}

	periods, _ := env.skipRepo.ListByCycle(ctx, open.ID)
	if len(periods) != 0 {
		t.Fatalf("被拒绝的写入不应留下记录: %d 条", len(periods))
	}
	after, _ := env.cycleRepo.GetByID(ctx, open.ID)
	if after.ValidHoursCount != before.ValidHoursCount || after.ValidDaysCount != before.ValidDaysCount {
		t.Fatalf("计数不应变化: before=%+v after=%+v", before, after)
	}
}

func TestSetSkipPeriodMalformedWindowRejected(t *testing.T) {
	now := time.Date(2025, 1, 3, 8, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	if _, err := env.calendar.UpdateSettings(ctx, time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local), 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	open, _ := env.cycleRepo.FindOpen(ctx)

	_, err := env.calendar.SetSkipPeriod(ctx, open.ID, "2025-01-02", "25:00", "08:00")
	var malformed *engine.MalformedSkipWindowError
	if !errors.As(err, &malformed) {
		t.Fatalf("err=%v, want MalformedSkipWindowError", err)
	}
}

func TestRefreshRolloverFiresExactlyOnce(t *testing.T) {
	// 连续重算把有效天数从 25 推到 26：恰好一次关闭、恰好一个后继周期
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	now := start.Add(25 * 24 * time.Hour) // 600 小时 → 25 天，未达标
	env := newTestEnv(t, now)
	ctx := context.Background()

	if _, err := env.calendar.UpdateSettings(ctx, start, 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	open, _ := env.cycleRepo.FindOpen(ctx)

	refreshed, err := env.calendar.Refresh(ctx, open)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if refreshed.IsCompleted || refreshed.ValidDaysCount != 25 {
		t.Fatalf("25 天不应触发滚动: %+v", refreshed)
	}

	// 时间推进过 26 天门槛
	closing := start.Add(26*24*time.Hour + time.Hour)
	env.calendar.now = func() time.Time { return closing }

	refreshed, err = env.calendar.Refresh(ctx, refreshed)
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if !refreshed.IsCompleted || refreshed.EndAt == nil {
		t.Fatalf("达标后周期应已关闭: %+v", refreshed)
	}
	if refreshed.ValidDaysCount != 26 || refreshed.ValidHoursCount != engine.ValidHoursCap {
		t.Fatalf("最终计数=(%d, %v), want (26, 624)", refreshed.ValidDaysCount, refreshed.ValidHoursCount)
	}

	successor, _ := env.cycleRepo.FindOpen(ctx)
	if successor == nil {
		t.Fatalf("滚动后应存在后继周期")
	}
	if successor.CycleNumber != refreshed.CycleNumber+1 {
		t.Fatalf("后继周期号=%d, want %d", successor.CycleNumber, refreshed.CycleNumber+1)
	}
	if successor.ValidDaysCount != 0 || successor.ValidHoursCount != 0 {
		t.Fatalf("后继周期计数应清零: %+v", successor)
	}
	// 后继开始时间：关闭当天 + 设置的起始时刻（08:00）
	wantStart := time.Date(closing.Year(), closing.Month(), closing.Day(), 8, 0, 0, 0, time.Local)
	if !successor.StartAt.Equal(wantStart) {
		t.Fatalf("后继开始时间=%v, want %v", successor.StartAt, wantStart)
	}

	// 再次重算已完成的周期不会二次滚动
	if _, err := env.calendar.Refresh(ctx, refreshed); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	cycles, _ := env.cycleRepo.List(ctx, 0, 10)
	if len(cycles) != 2 {
		t.Fatalf("周期总数=%d, want 2", len(cycles))
	}
}

func TestCalendarRangeMarksSkippedDays(t *testing.T) {
	now := time.Date(2025, 1, 5, 8, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	if _, err := env.calendar.UpdateSettings(ctx, start, 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	open, _ := env.cycleRepo.FindOpen(ctx)
	if _, err := env.calendar.SetSkipPeriod(ctx, open.ID, "2025-01-03", "20:00", "08:00"); err != nil {
		t.Fatalf("SetSkipPeriod error: %v", err)
	}

	resp, err := env.calendar.CalendarRange(ctx,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2025, 1, 7, 0, 0, 0, 0, time.Local))
	if err != nil {
		t.Fatalf("CalendarRange error: %v", err)
	}
	if len(resp.Days) != 7 {
		t.Fatalf("天数=%d, want 7", len(resp.Days))
	}
	if !resp.Days[0].IsCycleStart {
		t.Fatalf("01-01 应标记为周期开始日: %+v", resp.Days[0])
	}
	day3 := resp.Days[2]
	if !day3.IsSkipped || day3.IsValidDay || day3.SkipPeriod == nil {
		t.Fatalf("01-03 应标记为跳过日: %+v", day3)
	}
	if day3.SkipPeriod.StartTime != "20:00" || day3.SkipPeriod.EndTime != "08:00" {
		t.Fatalf("跳过窗口=%+v, want 20:00-08:00", day3.SkipPeriod)
	}
}

func TestResetClearsEverything(t *testing.T) {
	now := time.Date(2025, 1, 5, 8, 0, 0, 0, time.Local)
	env := newTestEnv(t, now)
	ctx := context.Background()

	if _, err := env.calendar.UpdateSettings(ctx, time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local), 12); err != nil {
		t.Fatalf("UpdateSettings error: %v", err)
	}
	if err := env.calendar.Reset(ctx); err != nil {
		t.Fatalf("Reset error: %v", err)
	}

	if _, err := env.calendar.GetSettings(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("重置后设置应不存在: %v", err)
	}
	if open, _ := env.cycleRepo.FindOpen(ctx); open != nil {
		t.Fatalf("重置后不应有周期: %+v", open)
	}
}

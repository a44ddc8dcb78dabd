package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yuqie6/cyclecal/internal/engine"
	"github.com/yuqie6/cyclecal/internal/eventbus"
	"github.com/yuqie6/cyclecal/internal/repository"
	"github.com/yuqie6/cyclecal/internal/schema"
)

// ErrNotFound 请求的记录不存在
var ErrNotFound = errors.New("记录不存在")

// ErrInvalidInput 请求参数无效
var ErrInvalidInput = errors.New("参数无效")

// CalendarService 日历核算服务：负责有效时间的重算与写回、跳过时段的增删改、
// 设置同步以及日历视图的组装。引擎本身不落库，所有持久化都收敛在这里。
type CalendarService struct {
	settingsRepo *repository.SettingsRepository
	cycleRepo    *repository.CycleRepository
	skipRepo     *repository.SkipPeriodRepository
	hub          *eventbus.Hub
	now          func() time.Time // 便于测试注入
}

// NewCalendarService 创建日历服务
func NewCalendarService(
	settingsRepo *repository.SettingsRepository,
	cycleRepo *repository.CycleRepository,
	skipRepo *repository.SkipPeriodRepository,
	hub *eventbus.Hub,
) *CalendarService {
	return &CalendarService{
		settingsRepo: settingsRepo,
		cycleRepo:    cycleRepo,
		skipRepo:     skipRepo,
		hub:          hub,
		now:          time.Now,
	}
}

// Refresh 重算周期的有效天数/小时数并写回。
// 进行中的周期达到目标天数时，在同一事务内关闭并创建后继周期。
// 重算失败时旧计数保持不变，下一次成功的重算会重新评估是否滚动。
func (s *CalendarService) Refresh(ctx context.Context, cycle *schema.Cycle) (*schema.Cycle, error) {
	periods, err := s.skipRepo.ListByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, err
	}

	asOf := time.Time{}
	if !cycle.IsCompleted {
		asOf = s.now()
	}
	days, hours := engine.ComputeValidTime(cycle, periods, asOf)

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	if decision := engine.MaybeRollover(cycle, days, hours, settings, s.now()); decision != nil {
		cycle.IsCompleted = true
		cycle.EndAt = &decision.ClosedAt
		cycle.ValidDaysCount = days
		cycle.ValidHoursCount = hours
		if err := s.cycleRepo.Rollover(ctx, cycle, decision.Successor); err != nil {
			return nil, fmt.Errorf("周期滚动失败: %w", err)
		}
		slog.Info("周期已自动完成并开启新周期",
			"cycle_number", cycle.CycleNumber,
			"valid_days", days,
			"next_cycle_number", decision.Successor.CycleNumber)
		s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCompleted, Data: map[string]any{
			"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber,
		}})
		s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCreated, Data: map[string]any{
			"cycle_number": decision.Successor.CycleNumber,
		}})
		return cycle, nil
	}

	cycle.ValidDaysCount = days
	cycle.ValidHoursCount = hours
	if err := s.cycleRepo.UpdateCounters(ctx, cycle.ID, days, hours); err != nil {
		return nil, fmt.Errorf("写回周期计数失败: %w", err)
	}
	return cycle, nil
}

// SetSkipPeriod 设置某日的跳过时段：同一日期原地覆盖，写入后立即重算周期计数。
// 日期解析、时间窗口校验与范围校验都在写入之前完成，任一失败整个写入被拒绝。
func (s *CalendarService) SetSkipPeriod(ctx context.Context, cycleID int64, dateStr, startTime, endTime string) (*schema.SkipPeriod, error) {
	cycle, err := s.cycleRepo.GetByID(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: 周期 %d", ErrNotFound, cycleID)
	}

	parsed, err := ParseExternalDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	date := engine.NormalizeDate(parsed)

	if _, _, err := engine.ResolveSkipWindow(date, startTime, endTime); err != nil {
		return nil, err
	}
	if err := engine.ValidateSkipPeriod(cycle, date); err != nil {
		return nil, err
	}

	period := &schema.SkipPeriod{
		CycleID:   cycle.ID,
		Date:      date,
		StartTime: startTime,
		EndTime:   endTime,
	}
	created, err := s.skipRepo.UpsertByDate(ctx, period)
	if err != nil {
		return nil, err
	}
	slog.Info("跳过时段已保存",
		"cycle_id", cycle.ID,
		"date", date.Format("2006-01-02"),
		"window", startTime+"-"+endTime,
		"created", created)

	if _, err := s.Refresh(ctx, cycle); err != nil {
		// 写入已生效，计数重算失败不回滚，等待下一次触发
		slog.Warn("跳过时段写入后重算失败", "cycle_id", cycle.ID, "error", err)
	}

	s.hub.Publish(eventbus.Event{Type: eventbus.EventSkipPeriodChanged, Data: map[string]any{
		"cycle_id": cycle.ID, "date": date.Format("2006-01-02"),
	}})
	return period, nil
}

// DeleteSkipPeriod 删除跳过时段并重算所属周期的计数
func (s *CalendarService) DeleteSkipPeriod(ctx context.Context, id int64) error {
	period, err := s.skipRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if period == nil {
		return fmt.Errorf("%w: 跳过时段 %d", ErrNotFound, id)
	}

	if err := s.skipRepo.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("跳过时段已删除", "skip_period_id", id, "cycle_id", period.CycleID)

	cycle, err := s.cycleRepo.GetByID(ctx, period.CycleID)
	if err == nil && cycle != nil {
		if _, err := s.Refresh(ctx, cycle); err != nil {
			slog.Warn("跳过时段删除后重算失败", "cycle_id", cycle.ID, "error", err)
		}
	}

	s.hub.Publish(eventbus.Event{Type: eventbus.EventSkipPeriodChanged, Data: map[string]any{
		"cycle_id": period.CycleID,
	}})
	return nil
}

// ListSkipPeriods 查询某周期的全部跳过时段
func (s *CalendarService) ListSkipPeriods(ctx context.Context, cycleID int64) ([]schema.SkipPeriod, error) {
	return s.skipRepo.ListByCycle(ctx, cycleID)
}

// GetSettings 获取日历设置
func (s *CalendarService) GetSettings(ctx context.Context) (*schema.CalendarSettings, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, fmt.Errorf("%w: 日历设置", ErrNotFound)
	}
	return settings, nil
}

// UpdateSettings 保存设置并同步当前周期：
// 有进行中的周期时把它的开始时间改为 startAt 并重算；
// 没有任何周期时（首次配置）立即创建第一个周期。
func (s *CalendarService) UpdateSettings(ctx context.Context, startAt time.Time, skipHours int) (*schema.CalendarSettings, error) {
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &schema.CalendarSettings{SkipHours: 12}
	}
	settings.StartHour = startAt.Hour()
	settings.StartMinute = startAt.Minute()
	if skipHours > 0 {
		settings.SkipHours = skipHours
	}
	if err := s.settingsRepo.Save(ctx, settings); err != nil {
		return nil, err
	}

	open, err := s.cycleRepo.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	if open != nil {
		before := open.StartAt
		open.StartAt = startAt
		if err := s.cycleRepo.Save(ctx, open); err != nil {
			return nil, err
		}
		slog.Info("已同步当前周期的开始时间",
			"cycle_id", open.ID, "before", before, "after", startAt)
		if _, err := s.Refresh(ctx, open); err != nil {
			slog.Warn("设置更新后重算失败", "cycle_id", open.ID, "error", err)
		}
	} else {
		cycle := &schema.Cycle{StartAt: startAt}
		if err := s.cycleRepo.CreateOpen(ctx, cycle); err != nil {
			return nil, err
		}
		slog.Info("首次配置，已创建第一个周期",
			"cycle_id", cycle.ID, "cycle_number", cycle.CycleNumber, "start_at", startAt)
		s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCreated, Data: map[string]any{
			"cycle_number": cycle.CycleNumber,
		}})
	}

	s.hub.Publish(eventbus.Event{Type: eventbus.EventSettingsUpdated})
	return settings, nil
}

// Reset 管理性重置：清空全部设置、周期与跳过时段
func (s *CalendarService) Reset(ctx context.Context) error {
	if err := s.settingsRepo.ResetAll(ctx); err != nil {
		return err
	}
	slog.Info("日历已重置，所有数据已清除")
	s.hub.Publish(eventbus.Event{Type: eventbus.EventSettingsUpdated})
	return nil
}

// ========== 日历视图 ==========

// SkipPeriodMark 日历单元格上的跳过窗口标记
type SkipPeriodMark struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CalendarDay 日历中的一天
type CalendarDay struct {
	Date         string          `json:"date"`
	IsSkipped    bool            `json:"is_skipped"`
	IsValidDay   bool            `json:"is_valid_day"`
	IsCycleStart bool            `json:"is_cycle_start"`
	SkipPeriodID int64           `json:"skip_period_id,omitempty"`
	SkipPeriod   *SkipPeriodMark `json:"skip_period,omitempty"`
}

// CalendarResponse 日历视图响应
type CalendarResponse struct {
	Days            []CalendarDay `json:"days"`
	CurrentCycle    *schema.Cycle `json:"current_cycle"`
	ValidDaysCount  int           `json:"valid_days_count"`
	ValidHoursCount float64       `json:"valid_hours_count"`
}

// CalendarRange 组装 [from, to] 日期范围的日历视图。
// 会先刷新当前周期的计数；没有进行中的周期时返回纯空白日历。
func (s *CalendarService) CalendarRange(ctx context.Context, from, to time.Time) (*CalendarResponse, error) {
	resp := &CalendarResponse{Days: []CalendarDay{}}

	current, err := s.cycleRepo.FindOpen(ctx)
	if err != nil {
		return nil, err
	}

	var periods []schema.SkipPeriod
	if current != nil {
		current, err = s.Refresh(ctx, current)
		if err != nil {
			return nil, err
		}
		periods, err = s.skipRepo.ListByCycle(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		resp.CurrentCycle = current
		resp.ValidDaysCount = current.ValidDaysCount
		resp.ValidHoursCount = current.ValidHoursCount
	}

	byDay := make(map[string]*schema.SkipPeriod, len(periods))
	for i := range periods {
		byDay[periods[i].Date.Format("2006-01-02")] = &periods[i]
	}

	for day := engine.DateOnly(from); !day.After(engine.DateOnly(to)); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		cd := CalendarDay{Date: key, IsValidDay: true}
		if current != nil && engine.SameDay(day, current.StartAt) {
			cd.IsCycleStart = true
		}
		if p, ok := byDay[key]; ok {
			cd.IsSkipped = true
			cd.IsValidDay = false
			cd.SkipPeriodID = p.ID
			cd.SkipPeriod = &SkipPeriodMark{
				Date:      key,
				StartTime: p.StartTime,
				EndTime:   p.EndTime,
			}
		}
		resp.Days = append(resp.Days, cd)
	}
	return resp, nil
}

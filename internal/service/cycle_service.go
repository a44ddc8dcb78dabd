package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuqie6/cyclecal/internal/engine"
	"github.com/yuqie6/cyclecal/internal/eventbus"
	"github.com/yuqie6/cyclecal/internal/repository"
	"github.com/yuqie6/cyclecal/internal/schema"
)

// ErrRemarkRequired 手动完成周期必须填写备注
var ErrRemarkRequired = errors.New("完成周期需要填写备注")

// ErrCycleCompleted 目标周期已经完成
var ErrCycleCompleted = errors.New("该周期已经完成")

// CycleService 周期操作服务：当前周期查询、历史列表、手动完成与手动创建
type CycleService struct {
	settingsRepo *repository.SettingsRepository
	cycleRepo    *repository.CycleRepository
	skipRepo     *repository.SkipPeriodRepository
	calendar     *CalendarService
	hub          *eventbus.Hub
	now          func() time.Time
}

// NewCycleService 创建周期服务
func NewCycleService(
	settingsRepo *repository.SettingsRepository,
	cycleRepo *repository.CycleRepository,
	skipRepo *repository.SkipPeriodRepository,
	calendar *CalendarService,
	hub *eventbus.Hub,
) *CycleService {
	return &CycleService{
		settingsRepo: settingsRepo,
		cycleRepo:    cycleRepo,
		skipRepo:     skipRepo,
		calendar:     calendar,
		hub:          hub,
		now:          time.Now,
	}
}

// Current 获取当前进行中的周期（计数已刷新，可能在刷新中自动滚动）
func (s *CycleService) Current(ctx context.Context) (*schema.Cycle, error) {
	open, err := s.cycleRepo.FindOpen(ctx)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, fmt.Errorf("%w: 进行中的周期", ErrNotFound)
	}
	return s.calendar.Refresh(ctx, open)
}

// List 按周期号倒序分页查询历史周期
func (s *CycleService) List(ctx context.Context, offset, limit int) ([]schema.Cycle, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.cycleRepo.List(ctx, offset, limit)
}

// GetByID 按 ID 查询周期
func (s *CycleService) GetByID(ctx context.Context, id int64) (*schema.Cycle, error) {
	cycle, err := s.cycleRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, fmt.Errorf("%w: 周期 %d", ErrNotFound, id)
	}
	return cycle, nil
}

// CycleUpdate 周期编辑载荷，nil 字段表示不修改
type CycleUpdate struct {
	StartAt     *time.Time
	EndAt       *time.Time
	CycleNumber *int
	IsCompleted *bool
	Remark      *string
}

// Update 编辑周期。边界变动后立即重算计数；
// 通过编辑把周期标记为完成时走手动完成的规则（需要备注），并保证存在后继周期。
func (s *CycleService) Update(ctx context.Context, id int64, upd CycleUpdate) (*schema.Cycle, error) {
	cycle, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	wasCompleted := cycle.IsCompleted
	if upd.StartAt != nil {
		cycle.StartAt = *upd.StartAt
	}
	if upd.EndAt != nil {
		cycle.EndAt = upd.EndAt
	}
	if upd.CycleNumber != nil {
		cycle.CycleNumber = *upd.CycleNumber
	}
	if upd.Remark != nil {
		cycle.Remark = *upd.Remark
	}
	if upd.IsCompleted != nil {
		cycle.IsCompleted = *upd.IsCompleted
	}

	if !wasCompleted && cycle.IsCompleted {
		if strings.TrimSpace(cycle.Remark) == "" {
			return nil, ErrRemarkRequired
		}
		if cycle.EndAt == nil {
			end := s.now()
			cycle.EndAt = &end
		}
	}
	if !cycle.IsCompleted {
		// 进行中的周期不允许挂着结束时间
		cycle.EndAt = nil
	}

	if err := s.cycleRepo.Save(ctx, cycle); err != nil {
		return nil, err
	}

	cycle, err = s.calendar.Refresh(ctx, cycle)
	if err != nil {
		return nil, err
	}

	if !wasCompleted && cycle.IsCompleted {
		if err := s.ensureSuccessor(ctx, cycle); err != nil {
			return nil, err
		}
		s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCompleted, Data: map[string]any{
			"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber,
		}})
	}
	return cycle, nil
}

// Complete 手动完成周期：备注必填，结束时刻可由调用方指定（默认当前时间）。
// 最终计数按结束时刻核算，随后在同一事务内创建后继周期。
func (s *CycleService) Complete(ctx context.Context, id int64, remark string, endAt *time.Time) (closed, successor *schema.Cycle, err error) {
	cycle, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if cycle.IsCompleted {
		return nil, nil, ErrCycleCompleted
	}
	if strings.TrimSpace(remark) == "" {
		return nil, nil, ErrRemarkRequired
	}

	end := s.now()
	if endAt != nil {
		end = *endAt
	}

	periods, err := s.skipRepo.ListByCycle(ctx, cycle.ID)
	if err != nil {
		return nil, nil, err
	}
	days, hours := engine.ComputeValidTime(cycle, periods, end)

	cycle.IsCompleted = true
	cycle.EndAt = &end
	cycle.ValidDaysCount = days
	cycle.ValidHoursCount = hours
	cycle.Remark = remark

	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	next := engine.NewSuccessor(cycle, settings, end)

	if err := s.cycleRepo.Rollover(ctx, cycle, next); err != nil {
		return nil, nil, err
	}
	slog.Info("周期已手动完成",
		"cycle_number", cycle.CycleNumber, "valid_days", days, "remark", remark)
	s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCompleted, Data: map[string]any{
		"cycle_id": cycle.ID, "cycle_number": cycle.CycleNumber,
	}})
	s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCreated, Data: map[string]any{
		"cycle_number": next.CycleNumber,
	}})
	return cycle, next, nil
}

// CreateManual 手动创建周期，仅在没有进行中的周期时允许（引导场景）。
// 周期号自动取历史最大值 +1。
func (s *CycleService) CreateManual(ctx context.Context, startAt time.Time, remark string) (*schema.Cycle, error) {
	cycle := &schema.Cycle{StartAt: startAt, Remark: remark}
	if err := s.cycleRepo.CreateOpen(ctx, cycle); err != nil {
		return nil, err
	}
	slog.Info("已手动创建周期",
		"cycle_id", cycle.ID, "cycle_number", cycle.CycleNumber, "start_at", startAt)
	s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCreated, Data: map[string]any{
		"cycle_number": cycle.CycleNumber,
	}})
	return cycle, nil
}

// Delete 删除周期及其跳过时段（管理用途）
func (s *CycleService) Delete(ctx context.Context, id int64) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return s.cycleRepo.Delete(ctx, id)
}

// ensureSuccessor 周期经编辑被关闭后，保证仍有一个进行中的周期
func (s *CycleService) ensureSuccessor(ctx context.Context, closed *schema.Cycle) error {
	open, err := s.cycleRepo.FindOpen(ctx)
	if err != nil {
		return err
	}
	if open != nil {
		return nil
	}
	settings, err := s.settingsRepo.Get(ctx)
	if err != nil {
		return err
	}
	next := engine.NewSuccessor(closed, settings, s.now())
	if err := s.cycleRepo.CreateOpen(ctx, next); err != nil {
		return err
	}
	s.hub.Publish(eventbus.Event{Type: eventbus.EventCycleCreated, Data: map[string]any{
		"cycle_number": next.CycleNumber,
	}})
	return nil
}

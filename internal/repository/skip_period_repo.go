package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/yuqie6/cyclecal/internal/engine"
	"github.com/yuqie6/cyclecal/internal/schema"
	"gorm.io/gorm"
)

// SkipPeriodRepository 跳过时段仓储
type SkipPeriodRepository struct {
	db *gorm.DB
}

// NewSkipPeriodRepository 创建仓储
func NewSkipPeriodRepository(db *gorm.DB) *SkipPeriodRepository {
	return &SkipPeriodRepository{db: db}
}

// UpsertByDate 按 (周期, 日期) 插入或原地覆盖。
// 同一周期同一日期至多一条记录；再次提交只更新时间窗口，ID 不变。
// 日期按日历日匹配，不依赖具体存储时刻。
func (r *SkipPeriodRepository) UpsertByDate(ctx context.Context, period *schema.SkipPeriod) (created bool, err error) {
	dayStart := engine.DateOnly(period.Date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var existing schema.SkipPeriod
	err = r.db.WithContext(ctx).
		Where("cycle_id = ? AND date >= ? AND date < ?", period.CycleID, dayStart, dayEnd).
		First(&existing).Error
	if err == nil {
		existing.StartTime = period.StartTime
		existing.EndTime = period.EndTime
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return false, fmt.Errorf("更新跳过时段失败: %w", err)
		}
		*period = existing
		return false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, fmt.Errorf("查询跳过时段失败: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(period).Error; err != nil {
		return false, fmt.Errorf("创建跳过时段失败: %w", err)
	}
	return true, nil
}

// ListByCycle 查询某周期的全部跳过时段（按日期升序）
func (r *SkipPeriodRepository) ListByCycle(ctx context.Context, cycleID int64) ([]schema.SkipPeriod, error) {
	var periods []schema.SkipPeriod
	err := r.db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("date ASC").
		Find(&periods).Error
	if err != nil {
		return nil, fmt.Errorf("查询跳过时段失败: %w", err)
	}
	return periods, nil
}

// FindByDate 查询某周期某日的跳过时段（无则返回 nil）
func (r *SkipPeriodRepository) FindByDate(ctx context.Context, cycleID int64, date time.Time) (*schema.SkipPeriod, error) {
	dayStart := engine.DateOnly(date)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var period schema.SkipPeriod
	err := r.db.WithContext(ctx).
		Where("cycle_id = ? AND date >= ? AND date < ?", cycleID, dayStart, dayEnd).
		First(&period).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询跳过时段失败: %w", err)
	}
	return &period, nil
}

// GetByID 按 ID 查询跳过时段
func (r *SkipPeriodRepository) GetByID(ctx context.Context, id int64) (*schema.SkipPeriod, error) {
	var period schema.SkipPeriod
	if err := r.db.WithContext(ctx).First(&period, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询跳过时段失败: %w", err)
	}
	return &period, nil
}

// Delete 删除跳过时段
func (r *SkipPeriodRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Delete(&schema.SkipPeriod{}, id).Error; err != nil {
		return fmt.Errorf("删除跳过时段失败: %w", err)
	}
	return nil
}

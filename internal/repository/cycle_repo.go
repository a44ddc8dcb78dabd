package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/cyclecal/internal/engine"
	"github.com/yuqie6/cyclecal/internal/schema"
	"gorm.io/gorm"
)

// CycleRepository 周期仓储
type CycleRepository struct {
	db *gorm.DB
}

// NewCycleRepository 创建仓储
func NewCycleRepository(db *gorm.DB) *CycleRepository {
	return &CycleRepository{db: db}
}

// FindOpen 查询当前进行中的周期（无则返回 nil）
func (r *CycleRepository) FindOpen(ctx context.Context) (*schema.Cycle, error) {
	var cycle schema.Cycle
	err := r.db.WithContext(ctx).
		Where("is_completed = ?", false).
		Order("id DESC").
		First(&cycle).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询进行中的周期失败: %w", err)
	}
	return &cycle, nil
}

// GetByID 按 ID 查询周期
func (r *CycleRepository) GetByID(ctx context.Context, id int64) (*schema.Cycle, error) {
	var cycle schema.Cycle
	if err := r.db.WithContext(ctx).First(&cycle, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询周期失败: %w", err)
	}
	return &cycle, nil
}

// List 按周期号倒序分页查询
func (r *CycleRepository) List(ctx context.Context, offset, limit int) ([]schema.Cycle, error) {
	var cycles []schema.Cycle
	err := r.db.WithContext(ctx).
		Order("cycle_number DESC").
		Offset(offset).
		Limit(limit).
		Find(&cycles).Error
	if err != nil {
		return nil, fmt.Errorf("查询周期列表失败: %w", err)
	}
	return cycles, nil
}

// MaxCycleNumber 获取历史最大周期号（无记录返回 0）
func (r *CycleRepository) MaxCycleNumber(ctx context.Context) (int, error) {
	var max int
	err := r.db.WithContext(ctx).
		Model(&schema.Cycle{}).
		Select("COALESCE(MAX(cycle_number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("查询周期号失败: %w", err)
	}
	return max, nil
}

// CreateOpen 创建新的进行中周期。
// 唯一性检查与插入在同一事务内完成：已存在进行中周期时返回 engine.ErrCycleAlreadyOpen，
// 而不是留给调用方做先查后插。CycleNumber 为 0 时自动取最大号 +1。
func (r *CycleRepository) CreateOpen(ctx context.Context, cycle *schema.Cycle) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var openCount int64
		if err := tx.Model(&schema.Cycle{}).Where("is_completed = ?", false).Count(&openCount).Error; err != nil {
			return fmt.Errorf("检查进行中周期失败: %w", err)
		}
		if openCount > 0 {
			return engine.ErrCycleAlreadyOpen
		}

		if cycle.CycleNumber == 0 {
			var max int
			if err := tx.Model(&schema.Cycle{}).Select("COALESCE(MAX(cycle_number), 0)").Scan(&max).Error; err != nil {
				return fmt.Errorf("查询周期号失败: %w", err)
			}
			cycle.CycleNumber = max + 1
		}

		if err := tx.Create(cycle).Error; err != nil {
			return fmt.Errorf("创建周期失败: %w", err)
		}
		return nil
	})
}

// Save 保存周期全部字段
func (r *CycleRepository) Save(ctx context.Context, cycle *schema.Cycle) error {
	if err := r.db.WithContext(ctx).Save(cycle).Error; err != nil {
		return fmt.Errorf("保存周期失败: %w", err)
	}
	return nil
}

// UpdateCounters 写回核算结果
func (r *CycleRepository) UpdateCounters(ctx context.Context, id int64, validDays int, validHours float64) error {
	err := r.db.WithContext(ctx).
		Model(&schema.Cycle{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"valid_days_count":  validDays,
			"valid_hours_count": validHours,
		}).Error
	if err != nil {
		return fmt.Errorf("更新周期计数失败: %w", err)
	}
	return nil
}

// Rollover 在同一事务内关闭当前周期并创建后继周期。
// 关闭与创建不可分离：二者之间不允许出现"零个或两个进行中周期"的中间态。
func (r *CycleRepository) Rollover(ctx context.Context, closed *schema.Cycle, successor *schema.Cycle) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(closed).Error; err != nil {
			return fmt.Errorf("关闭周期失败: %w", err)
		}

		var openCount int64
		if err := tx.Model(&schema.Cycle{}).Where("is_completed = ?", false).Count(&openCount).Error; err != nil {
			return fmt.Errorf("检查进行中周期失败: %w", err)
		}
		if openCount > 0 {
			return engine.ErrCycleAlreadyOpen
		}

		if err := tx.Create(successor).Error; err != nil {
			return fmt.Errorf("创建后继周期失败: %w", err)
		}
		return nil
	})
}

// Delete 删除周期及其所有跳过时段（同一事务）
func (r *CycleRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("cycle_id = ?", id).Delete(&schema.SkipPeriod{}).Error; err != nil {
			return fmt.Errorf("删除跳过时段失败: %w", err)
		}
		if err := tx.Delete(&schema.Cycle{}, id).Error; err != nil {
			return fmt.Errorf("删除周期失败: %w", err)
		}
		return nil
	})
}

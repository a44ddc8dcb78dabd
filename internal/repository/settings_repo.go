package repository

import (
	"context"
	"fmt"

	"github.com/yuqie6/cyclecal/internal/schema"
	"gorm.io/gorm"
)

// SettingsRepository 日历设置仓储（全局单行）
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository 创建仓储
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get 获取日历设置（未创建过返回 nil）
func (r *SettingsRepository) Get(ctx context.Context) (*schema.CalendarSettings, error) {
	var settings schema.CalendarSettings
	err := r.db.WithContext(ctx).First(&settings).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("查询日历设置失败: %w", err)
	}
	return &settings, nil
}

// Save 保存设置：已存在则更新那一行，否则创建
func (r *SettingsRepository) Save(ctx context.Context, settings *schema.CalendarSettings) error {
	if settings.ID == 0 {
		var existing schema.CalendarSettings
		err := r.db.WithContext(ctx).First(&existing).Error
		if err == nil {
			settings.ID = existing.ID
			settings.CreatedAt = existing.CreatedAt
		} else if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("查询日历设置失败: %w", err)
		}
	}
	if err := r.db.WithContext(ctx).Save(settings).Error; err != nil {
		return fmt.Errorf("保存日历设置失败: %w", err)
	}
	return nil
}

// ResetAll 管理性重置：一个事务内清空跳过时段、周期与设置
func (r *SettingsRepository) ResetAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&schema.SkipPeriod{}).Error; err != nil {
			return fmt.Errorf("清空跳过时段失败: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&schema.Cycle{}).Error; err != nil {
			return fmt.Errorf("清空周期记录失败: %w", err)
		}
		if err := tx.Where("1 = 1").Delete(&schema.CalendarSettings{}).Error; err != nil {
			return fmt.Errorf("清空日历设置失败: %w", err)
		}
		return nil
	})
}

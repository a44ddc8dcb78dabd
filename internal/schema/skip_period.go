package schema

import "time"

// SkipPeriod 跳过时段：某个日历日内的一段不计入有效时间的窗口。
// 同一周期内每个日期至多一条记录，重复提交按日期原地覆盖。
type SkipPeriod struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CycleID   int64     `gorm:"not null;index" json:"cycle_id"`
	Date      time.Time `gorm:"not null" json:"date"`              // 固定存为当天 12:00，避免日期比较出现偏移
	StartTime string    `gorm:"size:5;not null" json:"start_time"` // HH:MM
	EndTime   string    `gorm:"size:5;not null" json:"end_time"`   // HH:MM，早于等于 StartTime 时表示跨天
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SkipPeriod) TableName() string {
	return "skip_periods"
}

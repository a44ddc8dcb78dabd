package schema

import "time"

// CalendarSettings 日历设置（全局单行）。
// StartHour/StartMinute 决定新周期的起始时刻；SkipHours 仅用于默认跳过窗口的长度，
// 用户自定义的跳过时段不受它影响。
type CalendarSettings struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	StartHour   int       `gorm:"not null" json:"start_hour"`
	StartMinute int       `gorm:"not null;default:0" json:"start_minute"`
	SkipHours   int       `gorm:"not null;default:12" json:"skip_hours"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CalendarSettings) TableName() string {
	return "calendar_settings"
}

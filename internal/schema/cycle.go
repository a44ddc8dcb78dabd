package schema

import "time"

// Cycle 周期记录。一个周期累计满 26 个有效天后关闭，并自动开启下一个周期。
// 任意时刻最多存在一个 IsCompleted=false 的周期；EndAt 有值当且仅当周期已完成。
type Cycle struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CycleNumber     int        `gorm:"not null;uniqueIndex" json:"cycle_number"`
	StartAt         time.Time  `gorm:"not null;index" json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	ValidDaysCount  int        `gorm:"not null;default:0" json:"valid_days_count"`  // 0–26
	ValidHoursCount float64    `gorm:"not null;default:0" json:"valid_hours_count"` // 0–624
	IsCompleted     bool       `gorm:"not null;default:false;index" json:"is_completed"`
	Remark          string     `gorm:"type:text" json:"remark"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Cycle) TableName() string {
	return "cycle_records"
}

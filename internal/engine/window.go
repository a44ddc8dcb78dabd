package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yuqie6/cyclecal/internal/schema"
)

// ResolveSkipWindow 把 (日期, HH:MM, HH:MM) 解析为绝对时间区间 [start, end)。
// 结束时刻不晚于开始时刻时视为跨天窗口（如 22:00–06:00），结束时刻顺延一个日历日。
// 跨天只在这里处理一次，下游一律按已展开的绝对区间计算。
func ResolveSkipWindow(date time.Time, startTime, endTime string) (start, end time.Time, err error) {
	sh, sm, err := parseClock(startTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := parseClock(endTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	y, m, d := date.Date()
	start = time.Date(y, m, d, sh, sm, 0, 0, date.Location())
	end = time.Date(y, m, d, eh, em, 0, 0, date.Location())
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

// DefaultSkipWindow 按设置生成某日的默认跳过窗口：从周期起始小时开始，持续 SkipHours 小时。
// 仅作为辅助展示用，用户自定义的跳过时段不经过这里。
func DefaultSkipWindow(settings *schema.CalendarSettings) (startTime, endTime string) {
	startHour := settings.StartHour
	endHour := (startHour + settings.SkipHours) % 24
	return fmt.Sprintf("%02d:00", startHour), fmt.Sprintf("%02d:00", endHour)
}

// parseClock 严格解析 HH:MM，小时 0–23，分钟 0–59。
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, &MalformedSkipWindowError{Value: s, Reason: "应为 HH:MM 格式"}
	}
	hour, herr := strconv.Atoi(parts[0])
	minute, merr := strconv.Atoi(parts[1])
	if herr != nil || merr != nil {
		return 0, 0, &MalformedSkipWindowError{Value: s, Reason: "时或分不是数字"}
	}
	if hour < 0 || hour > 23 {
		return 0, 0, &MalformedSkipWindowError{Value: s, Reason: "小时超出 0-23"}
	}
	if minute < 0 || minute > 59 {
		return 0, 0, &MalformedSkipWindowError{Value: s, Reason: "分钟超出 0-59"}
	}
	return hour, minute, nil
}

package engine

import "time"

// DateOnly 去掉时刻部分，返回当天零点（保留原 Location）。
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NormalizeDate 把日期归一到当天中午 12:00。
// 跳过时段的 Date 字段统一用这个时刻存储，按日期比较时不会因时刻差出现偏移一天。
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 12, 0, 0, 0, t.Location())
}

// SameDay 判断两个时间是否落在同一个日历日。
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

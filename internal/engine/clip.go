package engine

import "time"

// ClipHours 把区间 [a, b) 裁剪到边界 [lo, hi] 内，返回裁剪后的小时数。
// 区间与边界完全不相交时 ok=false——调用方需要区分"整段被排除"与"裁剪后恰好为零"
// 两种情况，后者只在区间端点正好落在边界上时出现。
// 纯比较运算，不做任何时区转换。
func ClipHours(a, b, lo, hi time.Time) (hours float64, ok bool) {
	if b.Before(lo) || a.After(hi) {
		return 0, false
	}
	start := a
	if lo.After(start) {
		start = lo
	}
	end := b
	if hi.Before(end) {
		end = hi
	}
	return end.Sub(start).Hours(), true
}

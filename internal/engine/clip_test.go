package engine

import (
	"testing"
	"time"
)

func at(day, hour int) time.Time {
	return time.Date(2025, 1, day, hour, 0, 0, 0, time.Local)
}

func TestClipHoursFullyInside(t *testing.T) {
	hours, ok := ClipHours(at(2, 20), at(3, 8), at(1, 8), at(5, 8))
	if !ok {
		t.Fatalf("ok=false, want true")
	}
	if hours != 12 {
		t.Fatalf("hours=%v, want 12", hours)
	}
}

func TestClipHoursPartialOverlap(t *testing.T) {
	// 区间前半段在边界之外，只计入重叠部分
	hours, ok := ClipHours(at(1, 0), at(1, 12), at(1, 8), at(2, 0))
	if !ok || hours != 4 {
		t.Fatalf("hours=%v ok=%v, want 4 true", hours, ok)
	}
}

func TestClipHoursNoOverlap(t *testing.T) {
	if _, ok := ClipHours(at(1, 0), at(1, 6), at(2, 0), at(3, 0)); ok {
		t.Fatalf("整段在边界之前应返回 ok=false")
	}
	if _, ok := ClipHours(at(4, 0), at(4, 6), at(2, 0), at(3, 0)); ok {
		t.Fatalf("整段在边界之后应返回 ok=false")
	}
}

func TestClipHoursTouchingBoundIsZeroNotExcluded(t *testing.T) {
	// 端点恰好落在边界上：重叠存在但长度为零，与"被排除"不同
	hours, ok := ClipHours(at(1, 0), at(2, 0), at(2, 0), at(3, 0))
	if !ok {
		t.Fatalf("ok=false, want true")
	}
	if hours != 0 {
		t.Fatalf("hours=%v, want 0", hours)
	}
}

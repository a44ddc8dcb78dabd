package engine

import (
	"testing"
	"time"

	"github.com/yuqie6/cyclecal/internal/schema"
)

func TestMaybeRolloverBelowTarget(t *testing.T) {
	cycle := newOpenCycle(time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local))
	if d := MaybeRollover(cycle, 25, 600, nil, time.Now()); d != nil {
		t.Fatalf("25 天不应触发关闭: %+v", d)
	}
}

func TestMaybeRolloverAtTarget(t *testing.T) {
	cycle := newOpenCycle(time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local))
	cycle.CycleNumber = 3
	settings := &schema.CalendarSettings{StartHour: 20, StartMinute: 30}
	now := time.Date(2025, 1, 28, 9, 15, 0, 0, time.Local)

	d := MaybeRollover(cycle, ValidDaysTarget, ValidHoursCap, settings, now)
	if d == nil {
		t.Fatalf("达到 26 天应触发关闭")
	}
	if !d.ClosedAt.Equal(now) {
		t.Fatalf("ClosedAt=%v, want %v", d.ClosedAt, now)
	}

	succ := d.Successor
	if succ.CycleNumber != 4 {
		t.Fatalf("后继周期号=%d, want 4", succ.CycleNumber)
	}
	if succ.ValidDaysCount != 0 || succ.ValidHoursCount != 0 {
		t.Fatalf("后继周期计数应清零: %+v", succ)
	}
	wantStart := time.Date(2025, 1, 28, 20, 30, 0, 0, time.Local)
	if !succ.StartAt.Equal(wantStart) {
		t.Fatalf("后继开始时间=%v, want %v", succ.StartAt, wantStart)
	}
}

func TestMaybeRolloverCompletedCycleNeverFires(t *testing.T) {
	end := time.Now()
	cycle := newOpenCycle(time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local))
	cycle.IsCompleted = true
	cycle.EndAt = &end

	if d := MaybeRollover(cycle, ValidDaysTarget, ValidHoursCap, nil, time.Now()); d != nil {
		t.Fatalf("已完成的周期不应重复触发: %+v", d)
	}
}

func TestNewSuccessorWithoutSettings(t *testing.T) {
	cycle := newOpenCycle(time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local))
	now := time.Date(2025, 1, 28, 9, 15, 0, 0, time.Local)
	succ := NewSuccessor(cycle, nil, now)
	if !succ.StartAt.Equal(now) {
		t.Fatalf("无设置时后继开始时间应为当前时间, got %v", succ.StartAt)
	}
}

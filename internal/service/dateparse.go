package service

import (
	"fmt"
	"strings"
	"time"
)

// 外部日期串的统一解析边界：所有进入引擎的日期都先经过这里归一成本地时间。
// 带偏移量的输入显式转换到本地时区，而不是靠"看到 Z 就加一天"这类猜测。
var externalDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseExternalDate 解析外部传入的日期串，支持 YYYY-MM-DD、
// 无时区的 ISO 格式以及带偏移量的 RFC3339。返回值为本地时间。
func ParseExternalDate(s string) (time.Time, error) {
	v := strings.TrimSpace(s)
	if v == "" {
		return time.Time{}, fmt.Errorf("日期不能为空")
	}
	// 去掉毫秒部分，前端传来的 ISO 串常带 .000
	v = strings.Replace(v, ".000", "", 1)

	for _, layout := range externalDateLayouts {
		t, err := time.ParseInLocation(layout, v, time.Local)
		if err == nil {
			return t.In(time.Local), nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析日期: %q", s)
}

package clock

import "time"

// Clock 统一时间来源，批处理任务的时间窗口依赖它
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Fixed 固定时间，测试与补跑任务使用
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}

package limiter

import (
	"sync"
	"time"
)

// SlidingWindow 按客户端身份做滑动窗口限流。
// 每个身份记录窗口内已放行请求的时间戳，检查时先剔除过期记录；
// 与固定桶不同，窗口边界处的突发不会使实际速率翻倍。
// 状态仅在内存中，进程重启即清空
type SlidingWindow struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[string][]time.Time

	// 可注入时钟，便于测试
	now func() time.Time
}

// NewSlidingWindow 创建滑动窗口限流器
func NewSlidingWindow(maxRequests int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow 判断该身份的请求是否放行。
// 拒绝时不记录本次请求，放行时记录当前时间
func (l *SlidingWindow) Allow(identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.pruneLocked(identity, now)

	if len(recent) >= l.maxRequests {
		l.requests[identity] = recent
		return false
	}

	l.requests[identity] = append(recent, now)
	return true
}

// Remaining 返回该身份在当前窗口内剩余的可用请求数
func (l *SlidingWindow) Remaining(identity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.pruneLocked(identity, l.now())
	l.requests[identity] = recent

	remaining := l.maxRequests - len(recent)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// pruneLocked 剔除窗口外的时间戳，调用方必须持有锁
func (l *SlidingWindow) pruneLocked(identity string, now time.Time) []time.Time {
	windowStart := now.Add(-l.window)
	recorded := l.requests[identity]

	recent := recorded[:0]
	for _, t := range recorded {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}
	return recent
}

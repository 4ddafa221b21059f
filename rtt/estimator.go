// rtt/estimator.go
package rtt

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrStopped is returned when starting an estimator that was already stopped.
var ErrStopped = errors.New("rtt estimator stopped")

const (
	DefaultInterval   = time.Second
	DefaultWindowSize = 3
)

// ProbeFunc 发出一次延迟探测：携带 clientPingTime 毫秒时间戳，
// 返回服务端回显的时间戳。ctx 超时即视为该轮探测丢失。
type ProbeFunc func(ctx context.Context, clientPingTime int64) (echoedPingTime int64, err error)

// Estimator 维护有界的往返时延采样窗口并输出滑动平均。
// 探测循环严格串行：上一轮完成前不会发起下一轮。
type Estimator struct {
	probe    ProbeFunc
	interval time.Duration
	size     int

	mu      sync.Mutex
	samples []float64

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopped   bool
	stop      chan struct{}
	done      chan struct{}
}

func NewEstimator(probe ProbeFunc, interval time.Duration, windowSize int) *Estimator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Estimator{
		probe:    probe,
		interval: interval,
		size:     windowSize,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动探测循环
func (e *Estimator) Start() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	e.mu.Unlock()

	e.startOnce.Do(func() {
		e.mu.Lock()
		e.started = true
		e.mu.Unlock()
		go e.loop()
	})
	return nil
}

// Stop 停止循环并清空窗口，断线后不能再报告过期时延
func (e *Estimator) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		started := e.started
		e.mu.Unlock()

		close(e.stop)
		if started {
			<-e.done
		}
		e.Reset()
	})
}

// Average 返回窗口均值，窗口为空时 ok 为 false
func (e *Estimator) Average() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.samples) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range e.samples {
		sum += s
	}
	return sum / float64(len(e.samples)), true
}

// Record 压入一个采样，窗口满时淘汰最旧的一个
func (e *Estimator) Record(rttMs float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.samples) >= e.size {
		e.samples = e.samples[1:]
	}
	e.samples = append(e.samples, rttMs)
}

// Reset 清空整个窗口。回显时间戳对不上说明传输乱序或出错，
// 保守起见整窗作废而不是丢弃单个采样。
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = nil
}

func (e *Estimator) loop() {
	defer close(e.done)

	for {
		select {
		case <-e.stop:
			return
		default:
		}

		start := time.Now()
		t0 := start.UnixMilli()

		// 单轮探测的隐式超时就是探测间隔本身
		ctx, cancel := context.WithTimeout(context.Background(), e.interval)
		echoed, err := e.probe(ctx, t0)
		cancel()

		elapsed := time.Since(start)
		switch {
		case err != nil:
			// 本轮丢失，窗口不更新
		case echoed != t0:
			e.Reset()
		default:
			e.Record(float64(elapsed) / float64(time.Millisecond))
		}

		// 下一轮严格在本轮完成后调度，避免探测重叠
		wait := e.interval - elapsed
		if wait < 0 {
			wait = 0
		}
		select {
		case <-e.stop:
			return
		case <-time.After(wait):
		}
	}
}

// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// Manager 定时任务调度器。时钟可注入，测试用 clockwork.FakeClock
type Manager struct {
	clock    clockwork.Clock
	queue    TimerQueue
	mutex    sync.Mutex
	nextId   int64
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewManager creates a scheduler driven by the given clock.
// Pass nil for the real clock.
func NewManager(clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	manager := &Manager{
		clock:    clock,
		queue:    make(TimerQueue, 0),
		stopChan: make(chan struct{}),
		nextId:   1,
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// Schedule 注册任务。interval > 0 表示周期任务
func (m *Manager) Schedule(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  m.clock.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

func (m *Manager) Cancel(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			break
		}
	}
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

func (m *Manager) process() {
	ticker := m.clock.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.runDue()
		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) runDue() {
	m.mutex.Lock()
	now := m.clock.Now()

	var due []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		due = append(due, task)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	m.mutex.Unlock()

	// 回调在调度协程内串行执行，锁已释放，回调里可以再调 Cancel
	for _, task := range due {
		task.Callback()
	}
}

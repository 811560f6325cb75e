package window

import (
	"errors"
	"sync"
	"time"

	"wisefido-anxiety/internal/models"
)

// ErrOutOfOrder 读数时间戳不晚于会话中最后一条读数
var ErrOutOfOrder = errors.New("reading out of order")

// session 单个设备会话的滑动窗口（按时间戳升序）
type session struct {
	sessionID string
	readings  []models.Reading
	lastSeen  time.Time // 墙钟时间，用于空闲清理
}

// Manager 按设备维护会话窗口
// 过期读数在每次 Append 时顺带清理，不需要后台任务
type Manager struct {
	mu          sync.Mutex
	sessions    map[string]*session // key: device_id
	maxAge      time.Duration
	idleTimeout time.Duration
	lastSweep   time.Time
	now         func() time.Time
}

// NewManager 创建窗口管理器
func NewManager(maxAge, idleTimeout time.Duration) *Manager {
	return &Manager{
		sessions:    make(map[string]*session),
		maxAge:      maxAge,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Append 追加读数
// sessionId 变化时丢弃该设备的旧会话；乱序读数返回 ErrOutOfOrder 且不写入
func (m *Manager) Append(r models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepIdle(now)

	s, ok := m.sessions[r.DeviceID]
	if !ok || s.sessionID != r.SessionID {
		s = &session{sessionID: r.SessionID}
		m.sessions[r.DeviceID] = s
	}

	if n := len(s.readings); n > 0 && !r.Timestamp.After(s.readings[n-1].Timestamp) {
		return ErrOutOfOrder
	}

	s.readings = append(s.readings, r)
	s.lastSeen = now
	s.evict(r.Timestamp.Add(-m.maxAge))
	return nil
}

// ContiguousSpan 以最后一条读数结尾、相邻间隔均不超过 tolerance 的连续时长
func (m *Manager) ContiguousSpan(deviceID string, tolerance time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceID]
	if !ok || len(s.readings) == 0 {
		return 0
	}

	last := len(s.readings) - 1
	start := last
	for start > 0 && s.readings[start].Timestamp.Sub(s.readings[start-1].Timestamp) <= tolerance {
		start--
	}
	return s.readings[last].Timestamp.Sub(s.readings[start].Timestamp)
}

// EndSession 结束会话并丢弃窗口（sessionID 不匹配时忽略）
func (m *Manager) EndSession(deviceID, sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[deviceID]
	if !ok || s.sessionID != sessionID {
		return false
	}
	delete(m.sessions, deviceID)
	return true
}

// Len 活跃会话数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweepIdle 清理空闲会话，最多每半个 idleTimeout 执行一次
func (m *Manager) sweepIdle(now time.Time) {
	if m.idleTimeout <= 0 || now.Sub(m.lastSweep) < m.idleTimeout/2 {
		return
	}
	m.lastSweep = now
	for id, s := range m.sessions {
		if now.Sub(s.lastSeen) > m.idleTimeout {
			delete(m.sessions, id)
		}
	}
}

// evict 移除早于 cutoff 的读数
func (s *session) evict(cutoff time.Time) {
	i := 0
	for i < len(s.readings) && s.readings[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.readings = append(s.readings[:0], s.readings[i:]...)
	}
}

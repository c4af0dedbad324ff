package service

import (
	"errors"
	"sync"
	"time"
)

type SessionState string

const (
	SessionUntimed SessionState = "untimed"
	SessionRunning SessionState = "running"
	SessionExpired SessionState = "expired"
	SessionStopped SessionState = "stopped"
)

var ErrSessionClosed = errors.New("quiz session is closed")

// ExpireFunc 倒计时归零时被调用，走与手动提交相同的提交路径。
// 对同一会话至多触发一次。
type ExpireFunc func(attemptID string, answers map[string]AnswerValue)

// QuizSession 单次作答的会话状态机，同时承担答案缓冲。
// 状态: untimed / running -> expired | stopped，终态不可恢复。
// 单会话单写者，互斥锁只为防御清理任务与请求的交错访问。
type QuizSession struct {
	mu        sync.Mutex
	attemptID string
	state     SessionState
	startedAt time.Time
	deadline  time.Time // untimed 时为零值
	answers   map[string]AnswerValue
	onExpire  ExpireFunc
	fired     bool

	now func() time.Time
}

func NewQuizSession(attemptID string, startedAt time.Time, timeLimit time.Duration, onExpire ExpireFunc) *QuizSession {
	s := &QuizSession{
		attemptID: attemptID,
		state:     SessionUntimed,
		startedAt: startedAt,
		answers:   make(map[string]AnswerValue),
		onExpire:  onExpire,
		now:       time.Now,
	}
	if timeLimit > 0 {
		s.state = SessionRunning
		s.deadline = startedAt.Add(timeLimit)
	}
	return s
}

func (s *QuizSession) AttemptID() string {
	return s.attemptID
}

func (s *QuizSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetAnswer 覆盖式写入某道题的答案，支持任意顺序反复修改。
// 终态会话拒绝写入；写入前先做一次截止检查。
func (s *QuizSession) SetAnswer(questionID string, v AnswerValue) error {
	expired := false
	s.mu.Lock()
	s.checkDeadlineLocked(s.now())
	if s.state == SessionExpired || s.state == SessionStopped {
		expired = s.state == SessionExpired && !s.fired
		if expired {
			s.fired = true
		}
		s.mu.Unlock()
		if expired {
			s.fire()
		}
		return ErrSessionClosed
	}
	s.answers[questionID] = v
	s.mu.Unlock()
	return nil
}

// Answers 返回当前缓冲的拷贝
func (s *QuizSession) Answers() map[string]AnswerValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyAnswersLocked()
}

// RemainingSeconds 限时会话的剩余秒数，不限时返回-1
func (s *QuizSession) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deadline.IsZero() {
		return -1
	}
	remaining := int(s.deadline.Sub(s.now()).Seconds())
	if remaining < 0 || s.state == SessionExpired || s.state == SessionStopped {
		remaining = 0
	}
	return remaining
}

// ElapsedSeconds 已用时长：限时 = 总时长 - 剩余，不限时 = 距开始的墙钟时间
func (s *QuizSession) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked(s.now())
}

func (s *QuizSession) elapsedLocked(now time.Time) int {
	if !s.deadline.IsZero() {
		budget := int(s.deadline.Sub(s.startedAt).Seconds())
		remaining := int(s.deadline.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		return budget - remaining
	}
	elapsed := int(now.Sub(s.startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed
}

// Tick 时间驱动的状态推进。running 且越过截止线时进入 expired
// 并触发一次自动提交。清理任务按周期调用。
func (s *QuizSession) Tick(now time.Time) SessionState {
	s.mu.Lock()
	s.checkDeadlineLocked(now)
	state := s.state
	fire := state == SessionExpired && !s.fired
	if fire {
		s.fired = true
	}
	s.mu.Unlock()

	if fire {
		s.fire()
	}
	return state
}

// Stop 学生主动提交。返回答案快照与已用时长。
func (s *QuizSession) Stop() (map[string]AnswerValue, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionExpired || s.state == SessionStopped {
		return nil, 0, ErrSessionClosed
	}
	s.state = SessionStopped
	return s.copyAnswersLocked(), s.elapsedLocked(s.now()), nil
}

func (s *QuizSession) checkDeadlineLocked(now time.Time) {
	if s.state == SessionRunning && !now.Before(s.deadline) {
		s.state = SessionExpired
	}
}

func (s *QuizSession) copyAnswersLocked() map[string]AnswerValue {
	snapshot := make(map[string]AnswerValue, len(s.answers))
	for k, v := range s.answers {
		snapshot[k] = v
	}
	return snapshot
}

func (s *QuizSession) fire() {
	if s.onExpire != nil {
		s.onExpire(s.attemptID, s.Answers())
	}
}

// SessionManager 按作答ID持有进行中的会话
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*QuizSession
}

func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*QuizSession)}
}

func (m *SessionManager) Put(s *QuizSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.AttemptID()] = s
}

func (m *SessionManager) Get(attemptID string) (*QuizSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[attemptID]
	return s, ok
}

func (m *SessionManager) Remove(attemptID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, attemptID)
}

// TickAll 推进所有会话并返回进入 expired 的数量
func (m *SessionManager) TickAll(now time.Time) int {
	m.mu.RLock()
	sessions := make([]*QuizSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	expired := 0
	for _, s := range sessions {
		if s.Tick(now) == SessionExpired {
			expired++
		}
	}
	return expired
}

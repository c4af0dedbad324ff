package service

import (
	"elearn_backend/internal/config"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"elearn_backend/pkg/monitoring"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptStore 作答记录的持久化操作。
// 接口化便于在不依赖数据库的情况下测试引擎（仓库层为其实现）。
type AttemptStore interface {
	CreateWithQuestions(attempt *model.QuizAttempt, loadQuestions func(tx *gorm.DB) ([]model.QuizQuestion, error)) ([]model.QuizQuestion, error)
	FindByID(id string) (*model.QuizAttempt, error)
	LastAttemptNumber(userID uint, quizID string) (int, error)
	ListByUserAndQuiz(userID uint, quizID string) ([]model.QuizAttempt, error)
	FinalizeWithAnswers(attempt *model.QuizAttempt, answers []model.QuizAnswer) error
	ListAnswers(attemptID string) ([]model.QuizAnswer, error)
	ListStaleInProgress(now time.Time, limit int) ([]model.QuizAttempt, error)
	ListStaleInProgressForUser(userID uint, quizID string, now time.Time) ([]model.QuizAttempt, error)
}

type QuizSource interface {
	FindByID(id string) (*model.Quiz, error)
}

type QuestionSource interface {
	ListQuestions(quizID string) ([]model.QuizQuestion, error)
	ListQuestionsTx(tx *gorm.DB, quizID string) ([]model.QuizQuestion, error)
}

type EnrollmentSource interface {
	IsEnrolled(userID uint, courseID string) (bool, error)
}

// GradeNotifier 评分完成通知。实现方自行保证 best-effort，失败不得影响评分。
type GradeNotifier interface {
	QuizGraded(userID uint, quiz *model.Quiz, attempt *model.QuizAttempt)
}

type AttemptService struct {
	Quizzes   QuizSource
	Questions QuestionSource
	Attempts  AttemptStore
	Courses   EnrollmentSource
	Notifier  GradeNotifier
	Sessions  *SessionManager
	QuizCfg   config.QuizConfig

	now func() time.Time
}

func NewAttemptService(
	quizzes QuizSource,
	questions QuestionSource,
	attempts AttemptStore,
	courses EnrollmentSource,
	notifier GradeNotifier,
	sessions *SessionManager,
	quizCfg config.QuizConfig,
) *AttemptService {
	return &AttemptService{
		Quizzes:   quizzes,
		Questions: questions,
		Attempts:  attempts,
		Courses:   courses,
		Notifier:  notifier,
		Sessions:  sessions,
		QuizCfg:   quizCfg,
		now:       time.Now,
	}
}

type QuizOverview struct {
	Quiz         *model.Quiz         `json:"quiz"`
	AttemptsUsed int                 `json:"attemptsUsed"`
	AttemptsLeft int                 `json:"attemptsLeft"`
	Attempts     []model.QuizAttempt `json:"attempts"`
}

// QuizOverview 学生打开测验详情页看到的内容：测验信息、配额与历史作答
func (s *AttemptService) QuizOverview(userID uint, quizID string) (*QuizOverview, error) {
	quiz, err := s.Quizzes.FindByID(quizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if !quiz.IsPublished {
		return nil, util.ErrQuizNotPublished
	}

	enrolled, err := s.Courses.IsEnrolled(userID, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, util.ErrNotEnrolled
	}

	attempts, err := s.Attempts.ListByUserAndQuiz(userID, quizID)
	if err != nil {
		return nil, err
	}

	used, left := s.quotaFor(userID, quiz)
	return &QuizOverview{
		Quiz:         quiz,
		AttemptsUsed: used,
		AttemptsLeft: left,
		Attempts:     attempts,
	}, nil
}

type StartAttemptResult struct {
	Attempt          *model.QuizAttempt `json:"attempt"`
	Questions        []StudentQuestion  `json:"questions"`
	RemainingSeconds int                `json:"remainingSeconds"` // 不限时为-1
}

// StartAttempt 开始一次作答：配额校验、编号分配、原子创建、开启会话。
// 编号从1开始连续递增，弃考的作答同样占用编号。
func (s *AttemptService) StartAttempt(userID uint, quizID string) (*StartAttemptResult, error) {
	quiz, err := s.Quizzes.FindByID(quizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	if !quiz.IsPublished {
		return nil, util.ErrQuizNotPublished
	}

	enrolled, err := s.Courses.IsEnrolled(userID, quiz.CourseID)
	if err != nil {
		return nil, err
	}
	if !enrolled {
		return nil, util.ErrNotEnrolled
	}

	// 上一会话遗留的过期作答先归档，不影响编号的连续性
	s.expireStaleForUser(userID, quiz)

	attempt, questions, err := s.createAttempt(userID, quiz)
	if err != nil {
		return nil, err
	}

	monitoring.AttemptStarted.Inc()

	session := NewQuizSession(attempt.ID, attempt.StartedAt, s.timeLimit(quiz), s.autoSubmit)
	s.Sessions.Put(session)

	return &StartAttemptResult{
		Attempt:          attempt,
		Questions:        ToStudentQuestions(questions),
		RemainingSeconds: session.RemainingSeconds(),
	}, nil
}

func (s *AttemptService) createAttempt(userID uint, quiz *model.Quiz) (*model.QuizAttempt, []model.QuizQuestion, error) {
	// 唯一索引冲突说明并发请求抢到了同一编号，重算一次编号后重试
	for retry := 0; ; retry++ {
		last, err := s.Attempts.LastAttemptNumber(userID, quiz.ID)
		if err != nil {
			return nil, nil, err
		}
		next := last + 1
		if next > quiz.MaxAttempts {
			return nil, nil, util.ErrAttemptQuotaExceeded
		}

		startedAt := s.now()
		deadline := s.deadlineFor(quiz, startedAt)
		attempt := &model.QuizAttempt{
			QuizID:        quiz.ID,
			UserID:        userID,
			AttemptNumber: next,
			Status:        model.AttemptInProgress,
			StartedAt:     startedAt,
			DeadlineAt:    &deadline,
		}

		questions, err := s.Attempts.CreateWithQuestions(attempt, func(tx *gorm.DB) ([]model.QuizQuestion, error) {
			qs, qerr := s.Questions.ListQuestionsTx(tx, quiz.ID)
			if qerr != nil {
				return nil, util.ErrQuestionLoadFailed
			}
			return qs, nil
		})
		if err == nil {
			return attempt, questions, nil
		}
		if isDuplicateAttempt(err) && retry == 0 {
			continue
		}
		return nil, nil, err
	}
}

// SetAnswer 缓冲某道题的答案，可反复覆盖，不做持久化
func (s *AttemptService) SetAnswer(userID uint, attemptID, questionID string, value AnswerValue) error {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Status != model.AttemptInProgress {
		return util.ErrAttemptAlreadySubmitted
	}

	session, err := s.sessionFor(attempt)
	if err != nil {
		return err
	}
	if err := session.SetAnswer(questionID, value); err != nil {
		return util.ErrAttemptExpired
	}
	return nil
}

type AttemptState struct {
	Attempt          *model.QuizAttempt `json:"attempt"`
	State            SessionState       `json:"state"`
	RemainingSeconds int                `json:"remainingSeconds"`
	AnsweredIDs      []string           `json:"answeredIds"`
}

// GetState 当前会话状态，供前端恢复渲染
func (s *AttemptService) GetState(userID uint, attemptID string) (*AttemptState, error) {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}

	state := &AttemptState{Attempt: attempt, State: SessionStopped, RemainingSeconds: 0}
	if attempt.Status != model.AttemptInProgress {
		return state, nil
	}

	session, err := s.sessionFor(attempt)
	if err != nil {
		return nil, err
	}
	session.Tick(s.now())

	state.State = session.State()
	state.RemainingSeconds = session.RemainingSeconds()
	for id := range session.Answers() {
		state.AnsweredIDs = append(state.AnsweredIDs, id)
	}
	return state, nil
}

type AttemptResult struct {
	Attempt      *model.QuizAttempt `json:"attempt"`
	ScorePercent int                `json:"scorePercent"`
	PointsEarned int                `json:"pointsEarned"`
	TotalPoints  int                `json:"totalPoints"`
	IsPassed     bool               `json:"isPassed"`
	AttemptsUsed int                `json:"attemptsUsed"`
	AttemptsLeft int                `json:"attemptsLeft"`
}

// Submit 学生手动提交。截止后的迟交仍会评分，但按超时记录。
// 与自动提交竞争时以先落库者为准，后到方拿到已有结果。
func (s *AttemptService) Submit(userID uint, attemptID string) (*AttemptResult, error) {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAttemptAlreadySubmitted
	}

	quiz, err := s.Quizzes.FindByID(attempt.QuizID)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionFor(attempt)
	if err != nil {
		return nil, err
	}

	now := s.now()
	timeout := false
	if attempt.DeadlineAt != nil && quiz.TimeLimit > 0 {
		grace := time.Duration(s.QuizCfg.DeadlineGraceSeconds) * time.Second
		timeout = now.After(attempt.DeadlineAt.Add(grace))
	}

	answers, elapsed, stopErr := session.Stop()
	if stopErr != nil {
		// 会话已过期：自动提交路径可能已经处理，取快照走同一条提交路径，
		// 落库时的状态守卫保证不会写出重复答案
		answers = session.Answers()
		elapsed = session.ElapsedSeconds()
		timeout = true
	}

	result, err := s.finalize(quiz, attempt, answers, elapsed, timeout, model.AttemptSubmitted)
	if errors.Is(err, util.ErrAttemptAlreadySubmitted) {
		return s.storedResult(userID, quiz, attemptID)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetResult 已评分作答的结果视图
func (s *AttemptService) GetResult(userID uint, attemptID string) (*AttemptResult, error) {
	attempt, err := s.ownedAttempt(userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Status == model.AttemptInProgress {
		return nil, util.ErrAttemptNotFound
	}
	quiz, err := s.Quizzes.FindByID(attempt.QuizID)
	if err != nil {
		return nil, err
	}
	return s.storedResult(userID, quiz, attemptID)
}

func (s *AttemptService) ListAnswers(userID uint, attemptID string) ([]model.QuizAnswer, error) {
	if _, err := s.ownedAttempt(userID, attemptID); err != nil {
		return nil, err
	}
	return s.Attempts.ListAnswers(attemptID)
}

// SweepExpiredAttempts 周期清理：推进内存会话的倒计时，
// 再归档数据库中会话已丢失（如进程重启）的过期作答
func (s *AttemptService) SweepExpiredAttempts() error {
	now := s.now()
	s.Sessions.TickAll(now)

	stale, err := s.Attempts.ListStaleInProgress(now, 100)
	if err != nil {
		return err
	}
	for i := range stale {
		attempt := &stale[i]
		if _, ok := s.Sessions.Get(attempt.ID); ok {
			continue // TickAll 已触发自动提交
		}
		s.expireAttempt(attempt, nil)
	}
	return nil
}

// autoSubmit 倒计时归零时的强制提交，与手动提交走同一条评分/落库路径
func (s *AttemptService) autoSubmit(attemptID string, answers map[string]AnswerValue) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		logger.Log.Error("auto-submit: attempt lookup failed",
			zap.String("attemptId", attemptID), zap.Error(err))
		return
	}
	if attempt.Status != model.AttemptInProgress {
		s.Sessions.Remove(attemptID)
		return
	}
	s.expireAttempt(attempt, answers)
}

func (s *AttemptService) expireAttempt(attempt *model.QuizAttempt, answers map[string]AnswerValue) {
	quiz, err := s.Quizzes.FindByID(attempt.QuizID)
	if err != nil {
		logger.Log.Error("expire attempt: quiz lookup failed",
			zap.String("attemptId", attempt.ID), zap.Error(err))
		return
	}
	if answers == nil {
		answers = map[string]AnswerValue{}
	}

	elapsed := quiz.TimeLimit * 60
	if quiz.TimeLimit <= 0 {
		elapsed = int(s.now().Sub(attempt.StartedAt).Seconds())
	}

	if _, err := s.finalize(quiz, attempt, answers, elapsed, true, model.AttemptExpired); err != nil &&
		!errors.Is(err, util.ErrAttemptAlreadySubmitted) {
		logger.Log.Error("expire attempt: finalize failed",
			zap.String("attemptId", attempt.ID), zap.Error(err))
	}
}

func (s *AttemptService) expireStaleForUser(userID uint, quiz *model.Quiz) {
	stale, err := s.Attempts.ListStaleInProgressForUser(userID, quiz.ID, s.now())
	if err != nil {
		logger.Log.Warn("stale attempt lookup failed", zap.Error(err))
		return
	}
	for i := range stale {
		attempt := &stale[i]
		var answers map[string]AnswerValue
		if session, ok := s.Sessions.Get(attempt.ID); ok {
			answers = session.Answers()
		}
		s.expireAttempt(attempt, answers)
	}
}

// finalize 评分并在单个事务中写入答案、更新作答记录，然后发送通知。
// 通知失败只记录日志，绝不回滚评分。
// status: 手动提交为 submitted，超时归档为 expired，两者都会评分。
func (s *AttemptService) finalize(quiz *model.Quiz, attempt *model.QuizAttempt, answers map[string]AnswerValue, elapsed int, timeout bool, status model.AttemptStatus) (*AttemptResult, error) {
	questions, err := s.Questions.ListQuestions(quiz.ID)
	if err != nil {
		return nil, util.ErrQuestionLoadFailed
	}

	score := ScoreQuiz(questions, answers)
	passed := score.Passed(quiz.PassingScore)

	if quiz.TimeLimit > 0 && elapsed > quiz.TimeLimit*60 {
		elapsed = quiz.TimeLimit * 60
	}

	now := s.now()
	percent := score.ScorePercent
	attempt.Status = status
	attempt.SubmittedAt = &now
	attempt.TimeSpent = elapsed
	attempt.Score = &percent
	attempt.IsPassed = passed
	attempt.IsTimeout = timeout

	rows := make([]model.QuizAnswer, 0, len(score.PerQuestion))
	for _, qs := range score.PerQuestion {
		ans, answered := answers[qs.QuestionID]
		if !answered {
			continue
		}
		payload, _ := json.Marshal(ans)
		rows = append(rows, model.QuizAnswer{
			QuestionID:   qs.QuestionID,
			Answer:       payload,
			IsCorrect:    qs.IsCorrect,
			PointsEarned: qs.PointsEarned,
		})
	}

	if err := s.Attempts.FinalizeWithAnswers(attempt, rows); err != nil {
		return nil, err
	}

	s.Sessions.Remove(attempt.ID)
	monitoring.ObserveAttemptGraded(passed, timeout)

	if s.Notifier != nil {
		s.Notifier.QuizGraded(attempt.UserID, quiz, attempt)
	}

	used, left := s.quotaFor(attempt.UserID, quiz)
	return &AttemptResult{
		Attempt:      attempt,
		ScorePercent: score.ScorePercent,
		PointsEarned: score.PointsEarned,
		TotalPoints:  score.TotalPoints,
		IsPassed:     passed,
		AttemptsUsed: used,
		AttemptsLeft: left,
	}, nil
}

func (s *AttemptService) storedResult(userID uint, quiz *model.Quiz, attemptID string) (*AttemptResult, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil {
		return nil, util.ErrAttemptNotFound
	}
	percent := 0
	if attempt.Score != nil {
		percent = *attempt.Score
	}

	earned, total := 0, 0
	rows, err := s.Attempts.ListAnswers(attemptID)
	if err == nil {
		for _, row := range rows {
			earned += row.PointsEarned
		}
	}
	if questions, qerr := s.Questions.ListQuestions(quiz.ID); qerr == nil {
		for i := range questions {
			total += questions[i].Points
		}
	}

	used, left := s.quotaFor(userID, quiz)
	return &AttemptResult{
		Attempt:      attempt,
		ScorePercent: percent,
		PointsEarned: earned,
		TotalPoints:  total,
		IsPassed:     attempt.IsPassed,
		AttemptsUsed: used,
		AttemptsLeft: left,
	}, nil
}

func (s *AttemptService) quotaFor(userID uint, quiz *model.Quiz) (used, left int) {
	last, err := s.Attempts.LastAttemptNumber(userID, quiz.ID)
	if err != nil {
		return 0, 0
	}
	left = quiz.MaxAttempts - last
	if left < 0 {
		left = 0
	}
	return last, left
}

func (s *AttemptService) ownedAttempt(userID uint, attemptID string) (*model.QuizAttempt, error) {
	attempt, err := s.Attempts.FindByID(attemptID)
	if err != nil || attempt.UserID != userID {
		return nil, util.ErrAttemptNotFound
	}
	return attempt, nil
}

// sessionFor 取内存会话；进程重启后丢失时按作答记录重建（缓冲答案无法恢复）
func (s *AttemptService) sessionFor(attempt *model.QuizAttempt) (*QuizSession, error) {
	if session, ok := s.Sessions.Get(attempt.ID); ok {
		return session, nil
	}
	quiz, err := s.Quizzes.FindByID(attempt.QuizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	session := NewQuizSession(attempt.ID, attempt.StartedAt, s.timeLimit(quiz), s.autoSubmit)
	s.Sessions.Put(session)
	return session, nil
}

func (s *AttemptService) timeLimit(quiz *model.Quiz) time.Duration {
	return time.Duration(quiz.TimeLimit) * time.Minute
}

func (s *AttemptService) deadlineFor(quiz *model.Quiz, startedAt time.Time) time.Time {
	if quiz.TimeLimit > 0 {
		return startedAt.Add(time.Duration(quiz.TimeLimit) * time.Minute)
	}
	return startedAt.Add(time.Duration(s.QuizCfg.UntimedSessionMaxMinutes) * time.Minute)
}

func isDuplicateAttempt(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "Duplicate entry")
}

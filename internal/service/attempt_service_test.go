package service

import (
	"elearn_backend/internal/config"
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeEnv 内存实现测验引擎的全部依赖，模拟仓库层的事务语义
type fakeEnv struct {
	mu          sync.Mutex
	quizzes     map[string]*model.Quiz
	questions   map[string][]model.QuizQuestion
	enrolled    map[string]bool
	attempts    map[string]model.QuizAttempt
	answers     map[string][]model.QuizAnswer
	seq         int
	dupOnCreate int // 模拟编号唯一索引冲突的剩余次数
	notified    []string
}

func newFakeEnv() *fakeEnv {
	return &fakeEnv{
		quizzes:   make(map[string]*model.Quiz),
		questions: make(map[string][]model.QuizQuestion),
		enrolled:  make(map[string]bool),
		attempts:  make(map[string]model.QuizAttempt),
		answers:   make(map[string][]model.QuizAnswer),
	}
}

func enrollKey(userID uint, courseID string) string {
	return fmt.Sprintf("%d:%s", userID, courseID)
}

func (f *fakeEnv) FindByID(id string) (*model.Quiz, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quiz, ok := f.quizzes[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := *quiz
	return &copied, nil
}

func (f *fakeEnv) ListQuestions(quizID string) ([]model.QuizQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QuizQuestion(nil), f.questions[quizID]...), nil
}

func (f *fakeEnv) ListQuestionsTx(_ *gorm.DB, quizID string) ([]model.QuizQuestion, error) {
	return f.ListQuestions(quizID)
}

func (f *fakeEnv) IsEnrolled(userID uint, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enrolled[enrollKey(userID, courseID)], nil
}

func (f *fakeEnv) QuizGraded(_ uint, _ *model.Quiz, attempt *model.QuizAttempt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, attempt.ID)
}

func (f *fakeEnv) CreateWithQuestions(attempt *model.QuizAttempt, loadQuestions func(tx *gorm.DB) ([]model.QuizQuestion, error)) ([]model.QuizQuestion, error) {
	f.mu.Lock()
	if f.dupOnCreate > 0 {
		f.dupOnCreate--
		f.mu.Unlock()
		return nil, errors.New("Error 1062 (23000): Duplicate entry '7-quiz-1-1' for key 'uq_quiz_attempt'")
	}
	for _, a := range f.attempts {
		if a.UserID == attempt.UserID && a.QuizID == attempt.QuizID && a.AttemptNumber == attempt.AttemptNumber {
			f.mu.Unlock()
			return nil, errors.New("Error 1062 (23000): Duplicate entry for key 'uq_quiz_attempt'")
		}
	}
	f.seq++
	attempt.ID = fmt.Sprintf("attempt-%d", f.seq)
	f.attempts[attempt.ID] = *attempt
	f.mu.Unlock()
	return loadQuestions(nil)
}

func (f *fakeEnv) FindAttemptByID(id string) (*model.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	copied := a
	return &copied, nil
}

func (f *fakeEnv) LastAttemptNumber(userID uint, quizID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	last := 0
	for _, a := range f.attempts {
		if a.UserID == userID && a.QuizID == quizID && a.AttemptNumber > last {
			last = a.AttemptNumber
		}
	}
	return last, nil
}

func (f *fakeEnv) ListByUserAndQuiz(userID uint, quizID string) ([]model.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuizAttempt
	for _, a := range f.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeEnv) FinalizeWithAnswers(attempt *model.QuizAttempt, answers []model.QuizAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[attempt.ID]
	if !ok || stored.Status != model.AttemptInProgress {
		return util.ErrAttemptAlreadySubmitted
	}
	f.attempts[attempt.ID] = *attempt
	for i := range answers {
		answers[i].AttemptID = attempt.ID
	}
	f.answers[attempt.ID] = append(f.answers[attempt.ID], answers...)
	return nil
}

func (f *fakeEnv) ListAnswers(attemptID string) ([]model.QuizAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.QuizAnswer(nil), f.answers[attemptID]...), nil
}

func (f *fakeEnv) ListStaleInProgress(now time.Time, limit int) ([]model.QuizAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.QuizAttempt
	for _, a := range f.attempts {
		if a.Status == model.AttemptInProgress && a.DeadlineAt != nil && a.DeadlineAt.Before(now) {
			out = append(out, a)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEnv) ListStaleInProgressForUser(userID uint, quizID string, now time.Time) ([]model.QuizAttempt, error) {
	all, _ := f.ListStaleInProgress(now, 1000)
	var out []model.QuizAttempt
	for _, a := range all {
		if a.UserID == userID && a.QuizID == quizID {
			out = append(out, a)
		}
	}
	return out, nil
}

// attemptStoreAdapter 弥合方法名差异：接口要求 FindByID，fakeEnv 已把该名字
// 用在了测验查询上
type attemptStoreAdapter struct {
	*fakeEnv
}

func (a attemptStoreAdapter) FindByID(id string) (*model.QuizAttempt, error) {
	return a.FindAttemptByID(id)
}

const testUser uint = 7

func newTestService(quiz *model.Quiz, questions []model.QuizQuestion) (*fakeEnv, *AttemptService, *fakeClock) {
	env := newFakeEnv()
	env.quizzes[quiz.ID] = quiz
	env.questions[quiz.ID] = questions
	env.enrolled[enrollKey(testUser, quiz.CourseID)] = true

	svc := NewAttemptService(
		env,
		env,
		attemptStoreAdapter{env},
		env,
		env,
		NewSessionManager(),
		config.QuizConfig{DeadlineGraceSeconds: 5, UntimedSessionMaxMinutes: 1440, SweepIntervalSeconds: 60},
	)

	clock := &fakeClock{t: time.Now().Truncate(time.Second)}
	svc.now = clock.Now
	return env, svc, clock
}

// syncSessionClock 让会话与服务共用同一个测试时钟
func syncSessionClock(svc *AttemptService, attemptID string, clock *fakeClock) {
	if session, ok := svc.Sessions.Get(attemptID); ok {
		session.now = clock.Now
	}
}

func testQuiz() *model.Quiz {
	return &model.Quiz{
		UUIDBase:     model.UUIDBase{ID: "quiz-1"},
		CourseID:     "course-1",
		Title:        "数据结构单元测验",
		TimeLimit:    10,
		MaxAttempts:  2,
		PassingScore: 70,
		IsPublished:  true,
	}
}

func testQuestions() []model.QuizQuestion {
	return []model.QuizQuestion{
		choiceQuestion("q1", model.MultipleChoice, 5, []string{"a", "c"}, []string{"b"}),
		choiceQuestion("q2", model.TrueFalse, 5, []string{"t"}, []string{"f"}),
	}
}

func startAttempt(t *testing.T, svc *AttemptService, clock *fakeClock) *StartAttemptResult {
	t.Helper()
	res, err := svc.StartAttempt(testUser, "quiz-1")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	syncSessionClock(svc, res.Attempt.ID, clock)
	return res
}

func TestStartAttempt(t *testing.T) {
	_, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	if res.Attempt.AttemptNumber != 1 {
		t.Errorf("AttemptNumber = %d, want 1", res.Attempt.AttemptNumber)
	}
	if res.Attempt.Status != model.AttemptInProgress {
		t.Errorf("Status = %s, want in_progress", res.Attempt.Status)
	}
	if res.Attempt.DeadlineAt == nil {
		t.Fatal("DeadlineAt not set for timed quiz")
	}
	if want := res.Attempt.StartedAt.Add(10 * time.Minute); !res.Attempt.DeadlineAt.Equal(want) {
		t.Errorf("DeadlineAt = %v, want %v", res.Attempt.DeadlineAt, want)
	}
	if len(res.Questions) != 2 {
		t.Fatalf("len(Questions) = %d, want 2", len(res.Questions))
	}
	if res.RemainingSeconds <= 0 || res.RemainingSeconds > 600 {
		t.Errorf("RemainingSeconds = %d, want (0, 600]", res.RemainingSeconds)
	}
}

func TestStartAttemptGuards(t *testing.T) {
	env, svc, _ := newTestService(testQuiz(), testQuestions())

	if _, err := svc.StartAttempt(testUser, "missing"); !errors.Is(err, util.ErrQuizNotFound) {
		t.Errorf("missing quiz: err = %v, want ErrQuizNotFound", err)
	}

	env.quizzes["quiz-1"].IsPublished = false
	if _, err := svc.StartAttempt(testUser, "quiz-1"); !errors.Is(err, util.ErrQuizNotPublished) {
		t.Errorf("unpublished quiz: err = %v, want ErrQuizNotPublished", err)
	}
	env.quizzes["quiz-1"].IsPublished = true

	delete(env.enrolled, enrollKey(testUser, "course-1"))
	if _, err := svc.StartAttempt(testUser, "quiz-1"); !errors.Is(err, util.ErrNotEnrolled) {
		t.Errorf("not enrolled: err = %v, want ErrNotEnrolled", err)
	}
}

func submitAllCorrect(t *testing.T, svc *AttemptService, res *StartAttemptResult) *AttemptResult {
	t.Helper()
	if err := svc.SetAnswer(testUser, res.Attempt.ID, "q1", AnswerValue{OptionIDs: []string{"a", "c"}}); err != nil {
		t.Fatalf("SetAnswer q1: %v", err)
	}
	if err := svc.SetAnswer(testUser, res.Attempt.ID, "q2", AnswerValue{OptionIDs: []string{"t"}}); err != nil {
		t.Fatalf("SetAnswer q2: %v", err)
	}
	result, err := svc.Submit(testUser, res.Attempt.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return result
}

func TestSubmitGradesAndNotifies(t *testing.T) {
	env, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	clock.Advance(3 * time.Minute)
	result := submitAllCorrect(t, svc, res)

	if result.ScorePercent != 100 || !result.IsPassed {
		t.Errorf("result = %d%% passed=%v, want 100%% passed", result.ScorePercent, result.IsPassed)
	}
	if result.Attempt.TimeSpent != 180 {
		t.Errorf("TimeSpent = %d, want 180", result.Attempt.TimeSpent)
	}
	if result.Attempt.Status != model.AttemptSubmitted {
		t.Errorf("Status = %s, want submitted", result.Attempt.Status)
	}
	if result.Attempt.SubmittedAt == nil {
		t.Error("SubmittedAt not set")
	}
	if result.Attempt.IsTimeout {
		t.Error("on-time submit must not be flagged timeout")
	}
	if result.AttemptsUsed != 1 || result.AttemptsLeft != 1 {
		t.Errorf("quota = %d used / %d left, want 1/1", result.AttemptsUsed, result.AttemptsLeft)
	}

	rows, _ := env.ListAnswers(res.Attempt.ID)
	if len(rows) != 2 {
		t.Errorf("persisted answers = %d, want 2", len(rows))
	}
	if len(env.notified) != 1 || env.notified[0] != res.Attempt.ID {
		t.Errorf("notifications = %v, want [%s]", env.notified, res.Attempt.ID)
	}
	if _, ok := svc.Sessions.Get(res.Attempt.ID); ok {
		t.Error("session not removed after submit")
	}
}

func TestSubmitPartialScore(t *testing.T) {
	env, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	if err := svc.SetAnswer(testUser, res.Attempt.ID, "q1", AnswerValue{OptionIDs: []string{"a", "c"}}); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	result, err := svc.Submit(testUser, res.Attempt.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.ScorePercent != 50 || result.IsPassed {
		t.Errorf("result = %d%% passed=%v, want 50%% failed", result.ScorePercent, result.IsPassed)
	}

	// 未作答的题不落答案行
	rows, _ := env.ListAnswers(res.Attempt.ID)
	if len(rows) != 1 {
		t.Errorf("persisted answers = %d, want 1", len(rows))
	}
}

func TestSubmitTwice(t *testing.T) {
	_, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	first := submitAllCorrect(t, svc, res)

	if _, err := svc.Submit(testUser, res.Attempt.ID); !errors.Is(err, util.ErrAttemptAlreadySubmitted) {
		t.Errorf("second Submit: err = %v, want ErrAttemptAlreadySubmitted", err)
	}

	stored, err := svc.GetResult(testUser, res.Attempt.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if stored.ScorePercent != first.ScorePercent || stored.IsPassed != first.IsPassed {
		t.Errorf("stored result %d%%/%v diverges from first %d%%/%v",
			stored.ScorePercent, stored.IsPassed, first.ScorePercent, first.IsPassed)
	}
}

func TestAttemptQuota(t *testing.T) {
	_, svc, clock := newTestService(testQuiz(), testQuestions())

	for i := 1; i <= 2; i++ {
		res := startAttempt(t, svc, clock)
		if res.Attempt.AttemptNumber != i {
			t.Fatalf("attempt %d: AttemptNumber = %d", i, res.Attempt.AttemptNumber)
		}
		if _, err := svc.Submit(testUser, res.Attempt.ID); err != nil {
			t.Fatalf("Submit attempt %d: %v", i, err)
		}
	}

	if _, err := svc.StartAttempt(testUser, "quiz-1"); !errors.Is(err, util.ErrAttemptQuotaExceeded) {
		t.Errorf("third attempt: err = %v, want ErrAttemptQuotaExceeded", err)
	}
}

func TestAttemptNumberRetryOnConflict(t *testing.T) {
	env, svc, clock := newTestService(testQuiz(), testQuestions())
	env.dupOnCreate = 1

	res := startAttempt(t, svc, clock)
	if res.Attempt.AttemptNumber != 1 {
		t.Errorf("AttemptNumber after retry = %d, want 1", res.Attempt.AttemptNumber)
	}
	if len(env.attempts) != 1 {
		t.Errorf("stored attempts = %d, want 1", len(env.attempts))
	}
}

func TestAutoSubmitOnSweep(t *testing.T) {
	env, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	if err := svc.SetAnswer(testUser, res.Attempt.ID, "q2", AnswerValue{OptionIDs: []string{"t"}}); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	clock.Advance(11 * time.Minute)
	if err := svc.SweepExpiredAttempts(); err != nil {
		t.Fatalf("SweepExpiredAttempts: %v", err)
	}

	attempt, err := env.FindAttemptByID(res.Attempt.ID)
	if err != nil {
		t.Fatalf("FindAttemptByID: %v", err)
	}
	if attempt.Status != model.AttemptExpired {
		t.Errorf("Status = %s, want expired", attempt.Status)
	}
	if !attempt.IsTimeout {
		t.Error("expired attempt must be flagged timeout")
	}
	if attempt.Score == nil || *attempt.Score != 50 {
		t.Errorf("Score = %v, want 50 (buffered answer counted)", attempt.Score)
	}
	if attempt.TimeSpent != 600 {
		t.Errorf("TimeSpent = %d, want full 600s budget", attempt.TimeSpent)
	}
	if len(env.notified) != 1 {
		t.Errorf("notifications = %d, want 1", len(env.notified))
	}

	// 再次清理不得重复评分或重复通知
	if err := svc.SweepExpiredAttempts(); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(env.notified) != 1 {
		t.Errorf("notifications after second sweep = %d, want 1", len(env.notified))
	}
}

func TestStaleAttemptArchivedOnNextStart(t *testing.T) {
	env, svc, clock := newTestService(testQuiz(), testQuestions())

	first := startAttempt(t, svc, clock)
	clock.Advance(15 * time.Minute)

	second := startAttempt(t, svc, clock)
	if second.Attempt.AttemptNumber != 2 {
		t.Errorf("AttemptNumber = %d, want 2 (abandoned attempt keeps its slot)", second.Attempt.AttemptNumber)
	}

	archived, err := env.FindAttemptByID(first.Attempt.ID)
	if err != nil {
		t.Fatalf("FindAttemptByID: %v", err)
	}
	if archived.Status != model.AttemptExpired || !archived.IsTimeout {
		t.Errorf("abandoned attempt status = %s timeout=%v, want expired/true", archived.Status, archived.IsTimeout)
	}
}

func TestGetState(t *testing.T) {
	_, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	if err := svc.SetAnswer(testUser, res.Attempt.ID, "q1", AnswerValue{OptionIDs: []string{"a"}}); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	state, err := svc.GetState(testUser, res.Attempt.ID)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.State != SessionRunning {
		t.Errorf("State = %s, want running", state.State)
	}
	if len(state.AnsweredIDs) != 1 || state.AnsweredIDs[0] != "q1" {
		t.Errorf("AnsweredIDs = %v, want [q1]", state.AnsweredIDs)
	}
	if state.RemainingSeconds <= 0 {
		t.Errorf("RemainingSeconds = %d, want positive", state.RemainingSeconds)
	}

	// 他人的作答不可见
	if _, err := svc.GetState(99, res.Attempt.ID); !errors.Is(err, util.ErrAttemptNotFound) {
		t.Errorf("foreign attempt: err = %v, want ErrAttemptNotFound", err)
	}
}

func TestQuizOverview(t *testing.T) {
	_, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	if _, err := svc.Submit(testUser, res.Attempt.ID); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	overview, err := svc.QuizOverview(testUser, "quiz-1")
	if err != nil {
		t.Fatalf("QuizOverview: %v", err)
	}
	if overview.AttemptsUsed != 1 || overview.AttemptsLeft != 1 {
		t.Errorf("quota = %d used / %d left, want 1/1", overview.AttemptsUsed, overview.AttemptsLeft)
	}
	if len(overview.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(overview.Attempts))
	}

	if _, err := svc.QuizOverview(99, "quiz-1"); !errors.Is(err, util.ErrNotEnrolled) {
		t.Errorf("unenrolled student: err = %v, want ErrNotEnrolled", err)
	}
}

func TestUntimedAttempt(t *testing.T) {
	quiz := testQuiz()
	quiz.TimeLimit = 0
	_, svc, clock := newTestService(quiz, testQuestions())

	res := startAttempt(t, svc, clock)
	if res.RemainingSeconds != -1 {
		t.Errorf("RemainingSeconds = %d, want -1 for untimed quiz", res.RemainingSeconds)
	}
	if res.Attempt.DeadlineAt == nil {
		t.Fatal("untimed attempt still needs an archival deadline")
	}
	if want := res.Attempt.StartedAt.Add(1440 * time.Minute); !res.Attempt.DeadlineAt.Equal(want) {
		t.Errorf("DeadlineAt = %v, want %v", res.Attempt.DeadlineAt, want)
	}

	clock.Advance(42 * time.Second)
	result := submitAllCorrect(t, svc, res)
	if result.Attempt.TimeSpent != 42 {
		t.Errorf("TimeSpent = %d, want 42 (wall clock)", result.Attempt.TimeSpent)
	}
	if result.Attempt.IsTimeout {
		t.Error("untimed submit must not be flagged timeout")
	}
}

func TestLateSubmitGradedAsTimeout(t *testing.T) {
	_, svc, clock := newTestService(testQuiz(), testQuestions())

	res := startAttempt(t, svc, clock)
	if err := svc.SetAnswer(testUser, res.Attempt.ID, "q1", AnswerValue{OptionIDs: []string{"a", "c"}}); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	// 越过截止线但清理任务尚未运行，学生直接点了提交
	clock.Advance(10*time.Minute + 30*time.Second)
	result, err := svc.Submit(testUser, res.Attempt.ID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.Attempt.IsTimeout {
		t.Error("late submit must be flagged timeout")
	}
	if result.ScorePercent != 50 {
		t.Errorf("ScorePercent = %d, want 50 (buffered answers still graded)", result.ScorePercent)
	}
	if result.Attempt.TimeSpent != 600 {
		t.Errorf("TimeSpent = %d, want clamped to 600", result.Attempt.TimeSpent)
	}
}

package service

import (
	"context"
	"elearn_backend/internal/model"
	"elearn_backend/internal/repository"
	"elearn_backend/internal/util"
	"elearn_backend/pkg/logger"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const questionCacheTTL = 10 * time.Minute

type QuizService struct {
	Repo    *repository.QuizRepository
	Courses *repository.CourseRepository
	Redis   *redis.Client
}

func NewQuizService(repo *repository.QuizRepository, courses *repository.CourseRepository, rdb *redis.Client) *QuizService {
	return &QuizService{Repo: repo, Courses: courses, Redis: rdb}
}

type QuizOptionReq struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
	Order     int    `json:"order"`
}

type QuizQuestionReq struct {
	ID           string          `json:"id"`
	QuestionType string          `json:"questionType" binding:"required"`
	Content      string          `json:"content" binding:"required"`
	Points       int             `json:"points"`
	Order        int             `json:"order"`
	Explanation  string          `json:"explanation"`
	Options      []QuizOptionReq `json:"options"`
}

type QuizReq struct {
	Title        *string            `json:"title"`
	Description  *string            `json:"description"`
	TimeLimit    *int               `json:"timeLimit"`
	MaxAttempts  *int               `json:"maxAttempts"`
	PassingScore *int               `json:"passingScore"`
	IsPublished  *bool              `json:"isPublished"`
	Questions    *[]QuizQuestionReq `json:"questions"`
}

// validateQuestion 题型与选项形状的约束：
// 选择类题型至少一个正确选项（判断题恰好一个），主观题不允许带选项
func validateQuestion(req *QuizQuestionReq) error {
	qt := model.QuestionType(req.QuestionType)
	switch qt {
	case model.MultipleChoice, model.TrueFalse:
		correct := 0
		for _, o := range req.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct == 0 {
			return errors.New("choice question requires at least one correct option")
		}
		if qt == model.TrueFalse && correct != 1 {
			return errors.New("true_false question requires exactly one correct option")
		}
	case model.ShortAnswer, model.Essay:
		if len(req.Options) > 0 {
			return errors.New("free-text question must not have options")
		}
	default:
		return fmt.Errorf("unknown question type: %s", req.QuestionType)
	}
	if req.Points <= 0 {
		return errors.New("question points must be positive")
	}
	return nil
}

func (s *QuizService) CreateQuiz(instructorID uint, courseID string, req QuizReq) (*model.Quiz, error) {
	course, err := s.Courses.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if course.InstructorID != instructorID {
		return nil, util.ErrPermissionDenied
	}
	if req.Title == nil || *req.Title == "" {
		return nil, errors.New("title is required")
	}

	quiz := &model.Quiz{
		CourseID:     courseID,
		Title:        *req.Title,
		MaxAttempts:  1,
		PassingScore: 60,
	}
	applyQuizReq(quiz, req)

	if err := s.Repo.Create(quiz); err != nil {
		return nil, err
	}

	if req.Questions != nil {
		for i := range *req.Questions {
			if _, err := s.AddQuestion(quiz.ID, (*req.Questions)[i]); err != nil {
				return nil, err
			}
		}
	}
	return quiz, nil
}

func (s *QuizService) UpdateQuiz(quizID string, req QuizReq) (*model.Quiz, error) {
	quiz, err := s.Repo.FindByID(quizID)
	if err != nil {
		return nil, util.ErrQuizNotFound
	}
	applyQuizReq(quiz, req)
	if err := s.Repo.Update(quiz); err != nil {
		return nil, err
	}
	s.invalidateCache(quizID)
	return quiz, nil
}

func applyQuizReq(quiz *model.Quiz, req QuizReq) {
	if req.Title != nil {
		quiz.Title = *req.Title
	}
	if req.Description != nil {
		quiz.Description = *req.Description
	}
	if req.TimeLimit != nil {
		quiz.TimeLimit = *req.TimeLimit
	}
	if req.MaxAttempts != nil && *req.MaxAttempts > 0 {
		quiz.MaxAttempts = *req.MaxAttempts
	}
	if req.PassingScore != nil && *req.PassingScore >= 0 && *req.PassingScore <= 100 {
		quiz.PassingScore = *req.PassingScore
	}
	if req.IsPublished != nil {
		quiz.IsPublished = *req.IsPublished
	}
}

func (s *QuizService) DeleteQuiz(quizID string) error {
	if err := s.Repo.Delete(quizID); err != nil {
		return err
	}
	s.invalidateCache(quizID)
	return nil
}

func (s *QuizService) GetQuiz(quizID string) (*model.Quiz, []model.QuizQuestion, error) {
	quiz, err := s.Repo.FindByID(quizID)
	if err != nil {
		return nil, nil, util.ErrQuizNotFound
	}
	qs, err := s.Repo.ListQuestions(quizID)
	return quiz, qs, err
}

func (s *QuizService) ListQuizzes(courseID string, page, limit int) ([]repository.QuizListRow, int64, error) {
	return s.Repo.ListByCourse(courseID, page, limit)
}

func (s *QuizService) AddQuestion(quizID string, req QuizQuestionReq) (*model.QuizQuestion, error) {
	if err := validateQuestion(&req); err != nil {
		return nil, err
	}
	q := &model.QuizQuestion{
		QuizID:       quizID,
		QuestionType: model.QuestionType(req.QuestionType),
		Content:      req.Content,
		Points:       req.Points,
		Order:        req.Order,
		Explanation:  req.Explanation,
	}
	for _, o := range req.Options {
		q.Options = append(q.Options, model.QuizQuestionOption{
			Text:      o.Text,
			IsCorrect: o.IsCorrect,
			Order:     o.Order,
		})
	}
	if err := s.Repo.CreateQuestion(q); err != nil {
		return nil, err
	}
	s.invalidateCache(quizID)
	return q, nil
}

func (s *QuizService) UpdateQuestion(questionID string, req QuizQuestionReq) (*model.QuizQuestion, error) {
	if err := validateQuestion(&req); err != nil {
		return nil, err
	}
	var existing model.QuizQuestion
	if err := s.Repo.DB.First(&existing, "id = ?", questionID).Error; err != nil {
		return nil, err
	}

	existing.QuestionType = model.QuestionType(req.QuestionType)
	existing.Content = req.Content
	existing.Points = req.Points
	existing.Order = req.Order
	existing.Explanation = req.Explanation
	existing.Options = nil
	for _, o := range req.Options {
		existing.Options = append(existing.Options, model.QuizQuestionOption{
			QuestionID: questionID,
			Text:       o.Text,
			IsCorrect:  o.IsCorrect,
			Order:      o.Order,
		})
	}
	if err := s.Repo.UpdateQuestion(&existing); err != nil {
		return nil, err
	}
	s.invalidateCache(existing.QuizID)
	return &existing, nil
}

func (s *QuizService) DeleteQuestion(questionID string) error {
	var q model.QuizQuestion
	if err := s.Repo.DB.First(&q, "id = ?", questionID).Error; err != nil {
		return err
	}
	if err := s.Repo.DeleteQuestion(questionID); err != nil {
		return err
	}
	s.invalidateCache(q.QuizID)
	return nil
}

// ListQuestions 题库读取，已发布测验的题目集合走缓存。
// 同一次作答内题目顺序不变——顺序由存储的 order 字段决定，与缓存无关。
func (s *QuizService) ListQuestions(quizID string) ([]model.QuizQuestion, error) {
	if s.Redis != nil {
		cached, err := s.Redis.Get(context.Background(), questionCacheKey(quizID)).Bytes()
		if err == nil {
			var qs []model.QuizQuestion
			if json.Unmarshal(cached, &qs) == nil {
				return qs, nil
			}
		}
	}

	qs, err := s.Repo.ListQuestions(quizID)
	if err != nil {
		return nil, err
	}

	if s.Redis != nil {
		if data, merr := json.Marshal(qs); merr == nil {
			if err := s.Redis.Set(context.Background(), questionCacheKey(quizID), data, questionCacheTTL).Err(); err != nil {
				logger.Log.Warn("question cache write failed", zap.String("quizId", quizID), zap.Error(err))
			}
		}
	}
	return qs, nil
}

// ListQuestionsTx 事务内读取绕过缓存
func (s *QuizService) ListQuestionsTx(tx *gorm.DB, quizID string) ([]model.QuizQuestion, error) {
	return s.Repo.ListQuestionsTx(tx, quizID)
}

func (s *QuizService) FindByID(quizID string) (*model.Quiz, error) {
	return s.Repo.FindByID(quizID)
}

func (s *QuizService) invalidateCache(quizID string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(context.Background(), questionCacheKey(quizID)).Err(); err != nil {
		logger.Log.Warn("question cache invalidation failed", zap.String("quizId", quizID), zap.Error(err))
	}
}

func questionCacheKey(quizID string) string {
	return "quiz:questions:" + quizID
}

// StudentOption 学生视角的选项，不暴露正确性标记
type StudentOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Order int    `json:"order"`
}

type StudentQuestion struct {
	ID           string             `json:"id"`
	QuestionType model.QuestionType `json:"questionType"`
	Content      string             `json:"content"`
	Points       int                `json:"points"`
	Order        int                `json:"order"`
	Options      []StudentOption    `json:"options,omitempty"`
}

func ToStudentQuestions(qs []model.QuizQuestion) []StudentQuestion {
	out := make([]StudentQuestion, len(qs))
	for i := range qs {
		q := &qs[i]
		sq := StudentQuestion{
			ID:           q.ID,
			QuestionType: q.QuestionType,
			Content:      q.Content,
			Points:       q.Points,
			Order:        q.Order,
		}
		for _, o := range q.Options {
			sq.Options = append(sq.Options, StudentOption{ID: o.ID, Text: o.Text, Order: o.Order})
		}
		out[i] = sq
	}
	return out
}

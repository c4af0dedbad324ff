package service

import (
	"elearn_backend/internal/model"
	"elearn_backend/internal/repository"
	"elearn_backend/pkg/logger"
	"fmt"

	"go.uber.org/zap"
)

type NotificationService struct {
	Repo *repository.NotificationRepository
}

func NewNotificationService(repo *repository.NotificationRepository) *NotificationService {
	return &NotificationService{Repo: repo}
}

// QuizGraded 评分完成通知。best-effort：写入失败只记日志，
// 不向调用方返回错误，评分结果不受影响。
func (s *NotificationService) QuizGraded(userID uint, quiz *model.Quiz, attempt *model.QuizAttempt) {
	score := 0
	if attempt.Score != nil {
		score = *attempt.Score
	}
	outcome := "未通过"
	if attempt.IsPassed {
		outcome = "已通过"
	}

	n := &model.Notification{
		UserID:      userID,
		Type:        "quiz_graded",
		Title:       "测验已评分: " + quiz.Title,
		Message:     fmt.Sprintf("得分 %d%%，%s（及格线 %d%%）", score, outcome, quiz.PassingScore),
		Link:        fmt.Sprintf("/quizzes/%s/attempts/%s", quiz.ID, attempt.ID),
		RelatedID:   attempt.ID,
		RelatedType: "quiz_attempt",
	}

	if err := s.Repo.Create(n); err != nil {
		logger.Log.Warn("quiz graded notification failed",
			zap.Uint("userId", userID),
			zap.String("attemptId", attempt.ID),
			zap.Error(err))
	}
}

func (s *NotificationService) List(userID uint, page, limit int) ([]model.Notification, int64, error) {
	return s.Repo.ListByUser(userID, page, limit)
}

func (s *NotificationService) MarkRead(userID uint, id string) error {
	return s.Repo.MarkRead(userID, id)
}

func (s *NotificationService) UnreadCount(userID uint) (int64, error) {
	return s.Repo.UnreadCount(userID)
}

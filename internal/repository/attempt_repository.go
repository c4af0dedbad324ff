package repository

import (
	"elearn_backend/internal/model"
	"elearn_backend/internal/util"
	"errors"
	"time"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// CreateWithQuestions 在同一事务内写入作答记录并读取题目集合。
// 题目读取失败时整体回滚，不留下孤儿作答记录。
func (r *AttemptRepository) CreateWithQuestions(attempt *model.QuizAttempt, loadQuestions func(tx *gorm.DB) ([]model.QuizQuestion, error)) ([]model.QuizQuestion, error) {
	var qs []model.QuizQuestion
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		var err error
		qs, err = loadQuestions(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return qs, nil
}

func (r *AttemptRepository) FindByID(id string) (*model.QuizAttempt, error) {
	var a model.QuizAttempt
	err := r.DB.First(&a, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LastAttemptNumber 返回该学生在该测验下已占用的最大编号，没有则为0
func (r *AttemptRepository) LastAttemptNumber(userID uint, quizID string) (int, error) {
	var a model.QuizAttempt
	err := r.DB.Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("attempt_number desc").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.AttemptNumber, nil
}

func (r *AttemptRepository) ListByUserAndQuiz(userID uint, quizID string) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Order("attempt_number desc").
		Find(&attempts).Error
	return attempts, err
}

// AttemptListRow 教师端作答列表行
type AttemptListRow struct {
	model.QuizAttempt
	UserName  string `json:"userName"`
	UserEmail string `json:"userEmail"`
}

func (r *AttemptRepository) ListByQuiz(quizID string, page, limit int) ([]AttemptListRow, int64, error) {
	var total int64
	query := r.DB.Table("quiz_attempts a").
		Select("a.*, u.name as user_name, u.email as user_email").
		Joins("JOIN users u ON a.user_id = u.id").
		Where("a.quiz_id = ? AND a.deleted_at IS NULL", quizID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []AttemptListRow
	offset := (page - 1) * limit
	err := query.Order("a.created_at desc").Offset(offset).Limit(limit).Scan(&rows).Error
	return rows, total, err
}

// FinalizeWithAnswers 单个逻辑事务：写入全部答案并将作答置为终态。
// 状态条件保证重复提交不会二次写入答案。
func (r *AttemptRepository) FinalizeWithAnswers(attempt *model.QuizAttempt, answers []model.QuizAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
			Updates(map[string]interface{}{
				"status":       attempt.Status,
				"submitted_at": attempt.SubmittedAt,
				"time_spent":   attempt.TimeSpent,
				"score":        attempt.Score,
				"is_passed":    attempt.IsPassed,
				"is_timeout":   attempt.IsTimeout,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrAttemptAlreadySubmitted
		}
		for i := range answers {
			answers[i].AttemptID = attempt.ID
		}
		if len(answers) > 0 {
			if err := tx.Create(&answers).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AttemptRepository) ListAnswers(attemptID string) ([]model.QuizAnswer, error) {
	var answers []model.QuizAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// ListStaleInProgress 查出已过截止时间但仍为 in_progress 的作答，供清理任务归档
func (r *AttemptRepository) ListStaleInProgress(now time.Time, limit int) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.Where("status = ? AND deadline_at IS NOT NULL AND deadline_at < ?", model.AttemptInProgress, now).
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

// ListStaleInProgressForUser 与 ListStaleInProgress 相同，但限定到单个学生+测验，
// StartAttempt 前的惰性归档使用
func (r *AttemptRepository) ListStaleInProgressForUser(userID uint, quizID string, now time.Time) ([]model.QuizAttempt, error) {
	var attempts []model.QuizAttempt
	err := r.DB.Where("user_id = ? AND quiz_id = ? AND status = ? AND deadline_at IS NOT NULL AND deadline_at < ?",
		userID, quizID, model.AttemptInProgress, now).
		Find(&attempts).Error
	return attempts, err
}

package model

import (
	"encoding/json"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptExpired    AttemptStatus = "expired"
)

// QuizAttempt 学生对一份测验的一次作答。
// (user_id, quiz_id, attempt_number) 唯一索引保证并发开始时编号不重复。
type QuizAttempt struct {
	UUIDBase
	QuizID        string        `gorm:"uniqueIndex:uq_quiz_attempt;type:varchar(36)" json:"quizId"`
	UserID        uint          `gorm:"uniqueIndex:uq_quiz_attempt;type:bigint unsigned" json:"userId"`
	AttemptNumber int           `gorm:"uniqueIndex:uq_quiz_attempt;not null" json:"attemptNumber"`
	Status        AttemptStatus `gorm:"size:20;default:'in_progress';index" json:"status"`
	StartedAt     time.Time     `json:"startedAt"`
	DeadlineAt    *time.Time    `gorm:"index" json:"deadlineAt,omitempty"`
	SubmittedAt   *time.Time    `json:"submittedAt,omitempty"`
	TimeSpent     int           `gorm:"default:0" json:"timeSpent"` // 秒
	Score         *int          `json:"score,omitempty"`            // 百分比，评分前为空
	IsPassed      bool          `gorm:"default:false" json:"isPassed"`
	IsTimeout     bool          `gorm:"default:false" json:"isTimeout"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// QuizAnswer 提交时一次性写入，之后不再修改
type QuizAnswer struct {
	UUIDBase
	AttemptID    string          `gorm:"index;type:varchar(36)" json:"attemptId"`
	QuestionID   string          `gorm:"index;type:varchar(36)" json:"questionId"`
	Answer       json.RawMessage `gorm:"type:json" json:"answer"` // 选项ID列表或文本
	IsCorrect    bool            `gorm:"default:false" json:"isCorrect"`
	PointsEarned int             `gorm:"default:0" json:"pointsEarned"`
}

func (QuizAnswer) TableName() string {
	return "quiz_answers"
}

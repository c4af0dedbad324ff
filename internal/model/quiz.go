package model

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
)

// HasOptions 选择类题型带选项，主观题不带
func (t QuestionType) HasOptions() bool {
	return t == MultipleChoice || t == TrueFalse
}

// swagger:model Quiz
type Quiz struct {
	UUIDBase
	CourseID     string `gorm:"index;type:varchar(36)" json:"courseId"`
	Title        string `gorm:"size:255;not null" json:"title"`
	Description  string `gorm:"type:text" json:"description"`
	TimeLimit    int    `gorm:"default:0" json:"timeLimit"` // 分钟，0表示不限时
	MaxAttempts  int    `gorm:"default:1" json:"maxAttempts"`
	PassingScore int    `gorm:"default:60" json:"passingScore"` // 及格百分比 0-100
	IsPublished  bool   `gorm:"default:false" json:"isPublished"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// swagger:model QuizQuestion
type QuizQuestion struct {
	UUIDBase
	QuizID       string               `gorm:"index;type:varchar(36)" json:"quizId"`
	QuestionType QuestionType         `gorm:"size:50;not null" json:"questionType"`
	Content      string               `gorm:"type:text;not null" json:"content"`
	Points       int                  `gorm:"default:1" json:"points"`
	Order        int                  `gorm:"default:0" json:"order"`
	Explanation  string               `gorm:"type:text" json:"explanation"`
	Options      []QuizQuestionOption `gorm:"foreignKey:QuestionID" json:"options,omitempty"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}

// CorrectOptionIDs 返回标记为正确的选项ID集合
func (q *QuizQuestion) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// swagger:model QuizQuestionOption
type QuizQuestionOption struct {
	UUIDBase
	QuestionID string `gorm:"index;type:varchar(36)" json:"questionId"`
	Text       string `gorm:"type:text;not null" json:"text"`
	IsCorrect  bool   `gorm:"default:false" json:"isCorrect,omitempty"`
	Order      int    `gorm:"default:0" json:"order"`
}

func (QuizQuestionOption) TableName() string {
	return "quiz_question_options"
}

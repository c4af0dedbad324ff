package repository

import (
	"elearn_backend/internal/model"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) Create(course *model.Course) error {
	return r.DB.Create(course).Error
}

func (r *CourseRepository) FindByID(id string) (*model.Course, error) {
	var course model.Course
	err := r.DB.First(&course, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) ListByInstructor(instructorID uint) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.Where("instructor_id = ?", instructorID).
		Order("created_at desc").Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) Enroll(userID uint, courseID string) error {
	return r.DB.Create(&model.Enrollment{UserID: userID, CourseID: courseID}).Error
}

func (r *CourseRepository) IsEnrolled(userID uint, courseID string) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Count(&count).Error
	return count > 0, err
}

// StudentQuizRow 学生可见的测验列表行，附带已用次数用于配额展示
type StudentQuizRow struct {
	model.Quiz
	CourseTitle   string `json:"courseTitle"`
	AttemptsUsed  int    `json:"attemptsUsed"`
	QuestionCount int    `json:"questionCount"`
}

// ListAvailableQuizzes 返回已选课程中已发布的测验
func (r *CourseRepository) ListAvailableQuizzes(userID uint) ([]StudentQuizRow, error) {
	var rows []StudentQuizRow
	err := r.DB.Table("quizzes q").
		Select("q.*, c.title as course_title, "+
			"(SELECT COUNT(*) FROM quiz_attempts a WHERE a.quiz_id = q.id AND a.user_id = ? AND a.deleted_at IS NULL) as attempts_used, "+
			"(SELECT COUNT(*) FROM quiz_questions qq WHERE qq.quiz_id = q.id AND qq.deleted_at IS NULL) as question_count", userID).
		Joins("JOIN courses c ON q.course_id = c.id").
		Joins("JOIN enrollments e ON e.course_id = c.id AND e.user_id = ?", userID).
		Where("q.is_published = ? AND q.deleted_at IS NULL AND e.deleted_at IS NULL", true).
		Order("q.created_at desc").
		Scan(&rows).Error
	return rows, err
}

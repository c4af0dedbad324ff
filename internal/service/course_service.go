package service

import (
	"elearn_backend/internal/model"
	"elearn_backend/internal/repository"
	"errors"
)

type CourseService struct {
	Repo *repository.CourseRepository
}

func NewCourseService(repo *repository.CourseRepository) *CourseService {
	return &CourseService{Repo: repo}
}

type CourseReq struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	IsPublished bool   `json:"isPublished"`
}

func (s *CourseService) CreateCourse(instructorID uint, req CourseReq) (*model.Course, error) {
	course := &model.Course{
		Title:        req.Title,
		Description:  req.Description,
		InstructorID: instructorID,
		IsPublished:  req.IsPublished,
	}
	if err := s.Repo.Create(course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) ListMyCourses(instructorID uint) ([]model.Course, error) {
	return s.Repo.ListByInstructor(instructorID)
}

func (s *CourseService) Enroll(userID uint, courseID string) error {
	course, err := s.Repo.FindByID(courseID)
	if err != nil {
		return err
	}
	if !course.IsPublished {
		return errors.New("course not published")
	}

	enrolled, err := s.Repo.IsEnrolled(userID, courseID)
	if err != nil {
		return err
	}
	if enrolled {
		return nil
	}
	return s.Repo.Enroll(userID, courseID)
}

// AvailableQuiz 学生可见的测验及剩余次数，提交后刷新用于配额展示
type AvailableQuiz struct {
	repository.StudentQuizRow
	AttemptsLeft int `json:"attemptsLeft"`
}

func (s *CourseService) ListAvailableQuizzes(userID uint) ([]AvailableQuiz, error) {
	rows, err := s.Repo.ListAvailableQuizzes(userID)
	if err != nil {
		return nil, err
	}

	out := make([]AvailableQuiz, len(rows))
	for i, row := range rows {
		left := row.MaxAttempts - row.AttemptsUsed
		if left < 0 {
			left = 0
		}
		out[i] = AvailableQuiz{StudentQuizRow: row, AttemptsLeft: left}
	}
	return out, nil
}

func (s *CourseService) IsEnrolled(userID uint, courseID string) (bool, error) {
	return s.Repo.IsEnrolled(userID, courseID)
}

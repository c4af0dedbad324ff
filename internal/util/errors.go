package util

import "errors"

var (
	ErrUserNotFound            = errors.New("用户不存在")
	ErrEmailRegistered         = errors.New("该邮箱已被注册")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrQuizNotFound            = errors.New("quiz not found")
	ErrQuizNotPublished        = errors.New("quiz not published or not accessible")
	ErrNotEnrolled             = errors.New("not enrolled in this course")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptQuotaExceeded    = errors.New("attempt quota exceeded")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrAttemptExpired          = errors.New("attempt expired")
	ErrQuestionLoadFailed      = errors.New("failed to load quiz questions")
)

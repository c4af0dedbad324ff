package model

// swagger:model Course
type Course struct {
	UUIDBase
	Title        string `gorm:"size:255;not null" json:"title"`
	Description  string `gorm:"type:text" json:"description"`
	InstructorID uint   `gorm:"index;type:bigint unsigned" json:"instructorId"`
	IsPublished  bool   `gorm:"default:false" json:"isPublished"`
}

func (Course) TableName() string {
	return "courses"
}

// Enrollment 学生与课程的关联，决定学生可见的测验范围
type Enrollment struct {
	BaseModel
	UserID   uint   `gorm:"uniqueIndex:uq_enrollment;type:bigint unsigned" json:"userId"`
	CourseID string `gorm:"uniqueIndex:uq_enrollment;type:varchar(36)" json:"courseId"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

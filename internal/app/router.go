package app

import (
	"elearn_backend/docs"
	"elearn_backend/internal/config"
	"elearn_backend/internal/middleware"
	"elearn_backend/internal/model"
	"elearn_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		notifications := authGroup.Group("/notifications")
		{
			notifications.GET("", c.notification.List)
			notifications.GET("/unread-count", c.notification.UnreadCount)
			notifications.PUT("/:id/read", c.notification.MarkRead)
		}

		a.registerStudentRoutes(authGroup, c)
		a.registerInstructorRoutes(authGroup, c)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	student := rg.Group("/student")
	student.Use(middleware.RoleMiddleware(model.Student))
	{
		student.POST("/courses/:id/enroll", c.course.Enroll)
		student.GET("/quizzes", c.attempt.ListAvailableQuizzes)
		student.GET("/quizzes/:id", c.attempt.GetQuizOverview)
		student.POST("/quizzes/:id/attempts", c.attempt.StartAttempt)

		student.GET("/attempts/:id", c.attempt.GetState)
		student.PUT("/attempts/:id/answers/:questionId", c.attempt.SetAnswer)
		student.POST("/attempts/:id/submit", c.attempt.Submit)
		student.GET("/attempts/:id/result", c.attempt.GetResult)
	}
}

func (a *App) registerInstructorRoutes(rg *gin.RouterGroup, c *controllers) {
	instructor := rg.Group("/instructor")
	instructor.Use(middleware.RoleMiddleware(model.Instructor))
	{
		instructor.POST("/courses", c.course.CreateCourse)
		instructor.GET("/courses", c.course.ListMyCourses)

		instructor.POST("/courses/:courseId/quizzes", c.quiz.CreateQuiz)
		instructor.GET("/courses/:courseId/quizzes", c.quiz.ListQuizzes)

		instructor.GET("/quizzes/:id", c.quiz.GetQuiz)
		instructor.PUT("/quizzes/:id", c.quiz.UpdateQuiz)
		instructor.DELETE("/quizzes/:id", c.quiz.DeleteQuiz)
		instructor.GET("/quizzes/:id/attempts", c.quiz.ListAttempts)

		instructor.POST("/quizzes/:id/questions", c.quiz.AddQuestion)
		instructor.PUT("/questions/:id", c.quiz.UpdateQuestion)
		instructor.DELETE("/questions/:id", c.quiz.DeleteQuestion)
	}
}

package controller

import (
	"elearn_backend/internal/service"
	"elearn_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

// AttemptController 学生端作答流程
type AttemptController struct {
	Attempts *service.AttemptService
	Courses  *service.CourseService
}

func NewAttemptController(attempts *service.AttemptService, courses *service.CourseService) *AttemptController {
	return &AttemptController{Attempts: attempts, Courses: courses}
}

// @Summary 获取可作答的测验列表
// @Tags 作答模块
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /api/student/quizzes [get]
func (c *AttemptController) ListAvailableQuizzes(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	quizzes, err := c.Courses.ListAvailableQuizzes(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"items": quizzes})
}

// @Summary 获取测验详情（学生视角）
// @Tags 作答模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response
// @Router /api/student/quizzes/{id} [get]
func (c *AttemptController) GetQuizOverview(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	overview, err := c.Attempts.QuizOverview(user.UserID, ctx.Param("id"))
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, overview)
}

// @Summary 开始一次作答
// @Tags 作答模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测验ID"
// @Success 201 {object} util.Response
// @Router /api/student/quizzes/{id}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.Attempts.StartAttempt(user.UserID, ctx.Param("id"))
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}

	util.Created(ctx, result)
}

// @Summary 查询作答状态
// @Tags 作答模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/student/attempts/{id} [get]
func (c *AttemptController) GetState(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	state, err := c.Attempts.GetState(user.UserID, ctx.Param("id"))
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, state)
}

// @Summary 保存某题答案（可覆盖）
// @Tags 作答模块
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Param questionId path string true "题目ID"
// @Param body body service.AnswerValue true "答案内容"
// @Success 200 {object} util.Response
// @Router /api/student/attempts/{id}/answers/{questionId} [put]
func (c *AttemptController) SetAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var value service.AnswerValue
	if err := ctx.ShouldBindJSON(&value); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.Attempts.SetAnswer(user.UserID, ctx.Param("id"), ctx.Param("questionId"), value); err != nil {
		c.writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"saved": ctx.Param("questionId")})
}

// @Summary 提交作答并评分
// @Tags 作答模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/student/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.Attempts.Submit(user.UserID, ctx.Param("id"))
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 查询评分结果
// @Tags 作答模块
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response
// @Router /api/student/attempts/{id}/result [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.Attempts.GetResult(user.UserID, ctx.Param("id"))
	if err != nil {
		c.writeAttemptError(ctx, err)
		return
	}

	answers, err := c.Attempts.ListAnswers(user.UserID, ctx.Param("id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"result": result, "answers": answers})
}

func (c *AttemptController) writeAttemptError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrQuizNotFound), errors.Is(err, util.ErrAttemptNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrQuizNotPublished), errors.Is(err, util.ErrNotEnrolled):
		util.Forbidden(ctx)
	case errors.Is(err, util.ErrAttemptQuotaExceeded),
		errors.Is(err, util.ErrAttemptAlreadySubmitted),
		errors.Is(err, util.ErrAttemptExpired):
		util.Conflict(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

package controller

import (
	"errors"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/service"
	"safetrain_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type CourseController struct {
	courseService *service.CourseService
}

func NewCourseController(courseService *service.CourseService) *CourseController {
	return &CourseController{courseService: courseService}
}

type CreateCourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type PublishCourseRequest struct {
	Nodes []model.GraphNode `json:"nodes" binding:"required"`
	Edges []model.GraphEdge `json:"edges" binding:"required"`
}

// CreateCourse godoc
// @Summary Create a course draft
// @Tags courses
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body CreateCourseRequest true "course details"
// @Success 201 {object} util.Response{data=model.Course}
// @Router /api/courses [post]
func (c *CourseController) CreateCourse(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreateCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	course, err := c.courseService.CreateCourse(claims.UserID, req.Title, req.Description)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, course)
}

// ListCourses godoc
// @Summary List the operator's courses
// @Tags courses
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "page" default(1)
// @Param pageSize query int false "page size" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse}
// @Router /api/courses [get]
func (c *CourseController) ListCourses(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("pageSize", "10"))

	courses, total, err := c.courseService.ListCourses(claims.UserID, page, pageSize)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  courses,
		Total: total,
		Page:  page,
		Limit: pageSize,
	})
}

// GetCourse godoc
// @Summary Get one course
// @Tags courses
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "course id"
// @Success 200 {object} util.Response{data=model.Course}
// @Router /api/courses/{id} [get]
func (c *CourseController) GetCourse(ctx *gin.Context) {
	course, err := c.courseService.GetCourse(util.MustParseUint(ctx.Param("id")))
	if err != nil {
		if errors.Is(err, util.ErrCourseNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, course)
}

// PublishCourse godoc
// @Summary Validate and publish the course graph as a new version
// @Description Runs the full structural validation batch. On any problem
// the whole batch of graph errors is returned and nothing is published.
// @Tags courses
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "course id"
// @Param body body PublishCourseRequest true "nodes and edges"
// @Success 201 {object} util.Response{data=model.CourseVersion}
// @Failure 422 {object} util.Response{data=[]service.GraphError}
// @Router /api/courses/{id}/publish [post]
func (c *CourseController) PublishCourse(ctx *gin.Context) {
	var req PublishCourseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	version, graphErrs, err := c.courseService.PublishVersion(util.MustParseUint(ctx.Param("id")), req.Nodes, req.Edges)
	if err != nil {
		if errors.Is(err, util.ErrCourseNotFound) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	if len(graphErrs) > 0 {
		util.UnprocessableEntity(ctx, "course graph validation failed", graphErrs)
		return
	}

	util.Created(ctx, version)
}

// GetCourseVersion godoc
// @Summary Get a published course version
// @Tags courses
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "course id"
// @Param version path int true "version number"
// @Success 200 {object} util.Response{data=model.CourseVersion}
// @Router /api/courses/{id}/versions/{version} [get]
func (c *CourseController) GetCourseVersion(ctx *gin.Context) {
	version, err := c.courseService.GetVersion(util.MustParseUint(ctx.Param("id")), util.MustParseInt(ctx.Param("version")))
	if err != nil {
		if errors.Is(err, util.ErrCourseNotPublished) {
			util.NotFound(ctx)
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, version)
}

// UploadClip godoc
// @Summary Upload a training clip and probe its duration
// @Tags courses
// @Accept multipart/form-data
// @Produce json
// @Security ApiKeyAuth
// @Param file formData file true "video clip"
// @Success 200 {object} util.Response{data=service.ClipUploadResult}
// @Router /api/courses/clips [post]
func (c *CourseController) UploadClip(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}

	result, err := c.courseService.UploadClip(ctx.Request.Context(), file)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	util.Success(ctx, result)
}

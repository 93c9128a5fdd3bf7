package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/model"
	"marketplace/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// bindJSON binds and validates the request body, writing the error response on failure
func bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		utils.HandleError(c, utils.BindingError(err))
		return false
	}
	return true
}

// pathID parses a positive id path parameter
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := utils.ValidateID(c.Param(name))
	if err != nil {
		utils.HandleError(c, utils.Errorf(utils.CodeInvalidParam, "%s: %s", name, utils.GetErrorMessage(err)))
		return 0, false
	}
	return uint64(id), true
}

// pageParams reads page and page_size, clamping them into range
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}

func actor(c *gin.Context) model.Actor {
	return middleware.MustGetActor(c)
}

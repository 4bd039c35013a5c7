package echoapi

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
)

type cacheApi struct {
	svc    *offline.Service
	logger core.Logger
}

func registerCacheAPI(g *echo.Group, svc *offline.Service, logger core.Logger) {
	api := cacheApi{svc: svc, logger: logger}

	g.DELETE("/cache", api.clear)

	sg := g.Group("/students")
	sg.GET("", api.listStudents)
	sg.PUT("", api.cacheStudent)
	sg.GET("/:id", api.retrieveStudent)
	sg.GET("/:id/cached", api.isStudentCached)
	sg.PATCH("/:id/:field", api.updateStudent)

	pg := g.Group("/parent")
	pg.PUT("", api.cacheParent)
	pg.GET("", api.retrieveParent)
	pg.GET("/children/:id", api.retrieveChild)
}

type cachedResponse struct {
	Cached bool `json:"cached"`
}

// Handlers

func (api *cacheApi) listStudents(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.CachedStudentIDs())
}

func (api *cacheApi) cacheStudent(ctx echo.Context) error {
	var data offline.StudentData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentData")
	}
	if err := api.svc.CacheStudentData(data); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *cacheApi) retrieveStudent(ctx echo.Context) error {
	rec := api.svc.GetCachedStudentData(ctx.Param("id"))
	if rec == nil {
		return offline.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *cacheApi) isStudentCached(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, cachedResponse{Cached: api.svc.IsStudentDataCached(ctx.Param("id"))})
}

// updateStudent takes the new field value as the raw request body.
func (api *cacheApi) updateStudent(ctx echo.Context) error {
	body, err := ioutil.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading request body")
	}
	if len(body) == 0 {
		return core.NewFieldError(ctx.Param("field"), errors.New("a value is required"))
	}

	id := ctx.Param("id")
	if err := api.svc.UpdateStudentData(id, offline.Field(ctx.Param("field")), json.RawMessage(body)); err != nil {
		return err
	}
	rec := api.svc.GetCachedStudentData(id)
	if rec == nil { // write failed, already logged
		return ctx.NoContent(http.StatusNoContent)
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *cacheApi) cacheParent(ctx echo.Context) error {
	var data offline.ParentData
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ParentData")
	}
	if err := api.svc.CacheParentData(data); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *cacheApi) retrieveParent(ctx echo.Context) error {
	rec := api.svc.GetCachedParentData()
	if rec == nil {
		return offline.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *cacheApi) retrieveChild(ctx echo.Context) error {
	rec := api.svc.GetCachedChildData(ctx.Param("id"))
	if rec == nil {
		return offline.ErrNotFound
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *cacheApi) clear(ctx echo.Context) error {
	api.svc.ClearOfflineData()
	api.logger.Info("offline data cleared")
	return ctx.NoContent(http.StatusNoContent)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core/queue"
)

type actionApi struct {
	queue *queue.Queue
}

func registerActionAPI(g *echo.Group, q *queue.Queue) {
	api := actionApi{queue: q}

	ag := g.Group("/actions")
	ag.GET("", api.query)
	ag.POST("", api.create)
	ag.DELETE("", api.destroyAll)
	ag.DELETE("/:id", api.destroy)
}

// Handlers

func (api *actionApi) query(ctx echo.Context) error {
	actions := api.queue.List()
	if actions == nil {
		actions = []queue.Action{}
	}
	return ctx.JSON(http.StatusOK, actions)
}

func (api *actionApi) create(ctx echo.Context) error {
	var data queue.NewAction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAction")
	}
	act, err := api.queue.Enqueue(data)
	if err != nil {
		return errors.Wrap(err, "queuing action")
	}
	return ctx.JSON(http.StatusCreated, act)
}

func (api *actionApi) destroy(ctx echo.Context) error {
	if err := api.queue.Remove(ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing action")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *actionApi) destroyAll(ctx echo.Context) error {
	if err := api.queue.Clear(); err != nil {
		return errors.Wrap(err, "clearing actions")
	}
	return ctx.NoContent(http.StatusNoContent)
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
)

var errOffline = echo.NewHTTPError(http.StatusServiceUnavailable, "school API unreachable, try again once online")

type syncApi struct {
	svc    *offline.Service
	queue  *queue.Queue
	sender queue.Sender
	logger core.Logger
}

func registerSyncAPI(g *echo.Group, svc *offline.Service, q *queue.Queue, sender queue.Sender, logger core.Logger) {
	api := syncApi{svc: svc, queue: q, sender: sender, logger: logger}

	sg := g.Group("/sync")
	sg.GET("/status", api.status)
	sg.POST("", api.sync)
}

type syncResponse struct {
	Replayed int                `json:"replayed"`
	Status   offline.SyncStatus `json:"status"`
}

// Handlers

func (api *syncApi) status(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.GetSyncStatus())
}

// sync replays the queued actions, then refreshes the whole cache.
// It is refused while offline: the cache is only dropped when it can be refetched.
func (api *syncApi) sync(ctx echo.Context) error {
	if !api.svc.GetSyncStatus().IsOnline {
		return errOffline
	}

	reqCtx := ctx.Request().Context()
	var resp syncResponse
	if api.sender != nil {
		n, err := api.queue.Replay(reqCtx, api.sender)
		resp.Replayed = n
		if err != nil {
			api.logger.Warn("replaying offline actions", err)
			return echo.NewHTTPError(http.StatusBadGateway, errSyncFailed).SetInternal(err)
		}
	}

	if err := api.svc.ForceSync(reqCtx); err != nil {
		api.logger.Error("force sync", err)
		return echo.NewHTTPError(http.StatusBadGateway, errSyncFailed).SetInternal(err)
	}

	resp.Status = api.svc.GetSyncStatus()
	return ctx.JSON(http.StatusOK, resp)
}

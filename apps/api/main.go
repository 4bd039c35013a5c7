package main

import (
	"context"
	"fmt"
	"log"
	"os"

	echoapi "github.com/trezcool/masomo-offline/apps/api/echo"
	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
	logsvc "github.com/trezcool/masomo-offline/services/logger"
	"github.com/trezcool/masomo-offline/services/netstatus"
	"github.com/trezcool/masomo-offline/services/schoolapi"
	"github.com/trezcool/masomo-offline/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.LoadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "AGENT : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	// set up storage
	store, err := storage.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = store.Close(); err != nil {
			logger.Error("closing storage", err)
		}
	}()

	// set up services
	client := schoolapi.NewClient(conf, logger)
	var conn offline.Connectivity
	if conf.API.Offline {
		conn = netstatus.Static(false)
	} else {
		conn = netstatus.NewMonitor(client, conf.API.Timeout, conf.Cache.StatusCheckInterval/2)
	}
	actions := queue.New(store, logger)
	cacheSvc := offline.NewService(
		offline.OptionsFromConfig(conf),
		offline.Deps{
			Storage:      store,
			Logger:       logger,
			Queue:        actions,
			Connectivity: conn,
			Fetcher:      client,
		},
	)
	unsubscribe := cacheSvc.OnSyncStatusChange(func(status offline.SyncStatus) {
		logger.Debug("sync status changed", status)
	})
	defer unsubscribe()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, storage %q", conf.Build, conf.Storage.Engine))
	defer logger.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cacheSvc.Init(ctx)
	defer cacheSvc.Cleanup()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:    conf,
			Logger:  logger,
			Storage: store,
			Cache:   cacheSvc,
			Queue:   actions,
			Sender:  client,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/core/offline"
	"github.com/trezcool/masomo-offline/core/queue"
	logsvc "github.com/trezcool/masomo-offline/services/logger"
	"github.com/trezcool/masomo-offline/services/netstatus"
	"github.com/trezcool/masomo-offline/services/schoolapi"
	"github.com/trezcool/masomo-offline/storage"
	"github.com/trezcool/masomo-offline/storage/database"
	sqlxstore "github.com/trezcool/masomo-offline/storage/database/sqlx"
)

var logger *logsvc.RollbarLogger

func main() {
	conf, err := core.LoadConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger = logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// set up storage; postgres is not migrated here, that is the migrate command's job
	var (
		db    *sql.DB
		store core.StorageCloser
	)
	if conf.Storage.Engine == storage.EnginePostgres {
		db, err = database.Open(conf)
		errAndDie(err)
		errAndDie(database.Ping(db, 10))
		store = sqlxstore.NewStorage(db, conf.Database.Engine)
	} else {
		store, err = storage.Open(conf)
		errAndDie(err)
	}

	client := schoolapi.NewClient(conf, logger)
	var conn offline.Connectivity = netstatus.Static(false)
	if !conf.API.Offline {
		conn = netstatus.NewMonitor(client, conf.API.Timeout, conf.Cache.StatusCheckInterval)
	}
	actions := queue.New(store, logger)

	// start CLI
	cli := commandLine{
		db:     db,
		queue:  actions,
		sender: client,
		cache: offline.NewService(
			offline.OptionsFromConfig(conf),
			offline.Deps{
				Storage:      store,
				Logger:       logger,
				Queue:        actions,
				Connectivity: conn,
				Fetcher:      client,
			},
		),
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
	err = cli.run(os.Args)

	cli.cache.Cleanup()
	if cErr := store.Close(); cErr != nil {
		logger.Error("closing storage", cErr)
	}
	logger.Close()

	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

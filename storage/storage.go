// Package storage opens the local storage engine selected by the configuration.
package storage

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/storage/database"
	sqlxstore "github.com/trezcool/masomo-offline/storage/database/sqlx"
	filestore "github.com/trezcool/masomo-offline/storage/local/file"
	"github.com/trezcool/masomo-offline/storage/local/inmem"
)

const (
	EngineMemory   = "memory"
	EngineFile     = "file"
	EnginePostgres = "postgres"
)

var ErrUnknownEngine = errors.New("unknown storage engine")

// Open returns the configured storage. The postgres engine creates and migrates its database first.
func Open(conf *core.Config) (core.StorageCloser, error) {
	switch conf.Storage.Engine {
	case EngineMemory:
		return inmem.Open(), nil

	case EngineFile, "":
		dir := conf.Storage.Dir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(conf.WorkDir, dir)
		}
		return filestore.Open(dir)

	case EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(db, 10); err != nil {
			_ = db.Close()
			return nil, err
		}
		if err = database.Migrate(db, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return sqlxstore.NewStorage(db, conf.Database.Engine), nil
	}
	return nil, errors.Wrapf(ErrUnknownEngine, "%q", conf.Storage.Engine)
}

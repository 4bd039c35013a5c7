package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName  string
		Env      string // DEV (local; default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		RollbarToken string

		Server   ServerConfig
		Cache    CacheConfig
		Storage  StorageConfig
		Database DatabaseConfig
		API      APIConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		DisableReqLogs  bool
		ShutdownTimeout time.Duration
	}

	CacheConfig struct {
		TTL                   time.Duration
		SchemaVersion         string
		RefreshExpiryOnUpdate bool
		StatusCheckInterval   time.Duration
	}

	StorageConfig struct {
		Engine string // memory | file | postgres
		Dir    string // used by the file engine
	}

	DatabaseConfig struct {
		Engine     string
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	APIConfig struct {
		BaseURL  string
		Timeout  time.Duration
		MaxTries uint
		Offline  bool // never probe; report offline
	}
)

func (dc DatabaseConfig) Address() string {
	return dc.Host + ":" + dc.Port
}

// LoadConfig reads the configuration from the environment.
// Variables are prefixed with the current ENV, e.g. DEV_CACHE_TTL=12h.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "dev")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.schemaVersion", "1.0")
	v.SetDefault("cache.refreshExpiryOnUpdate", false)
	v.SetDefault("cache.statusCheckInterval", 30*time.Second)
	v.SetDefault("storage.engine", "file")
	v.SetDefault("storage.dir", ".masomo")
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("api.baseURL", "http://localhost:8080/api")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("api.maxTries", 3)
	v.SetDefault("api.offline", false)
	v.SetDefault("rollbarToken", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "stat %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		WorkDir:      wd,
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Cache: CacheConfig{
			TTL:                   v.GetDuration("cache.ttl"),
			SchemaVersion:         v.GetString("cache.schemaVersion"),
			RefreshExpiryOnUpdate: v.GetBool("cache.refreshExpiryOnUpdate"),
			StatusCheckInterval:   v.GetDuration("cache.statusCheckInterval"),
		},
		Storage: StorageConfig{
			Engine: CleanString(v.GetString("storage.engine"), true /* lower */),
			Dir:    v.GetString("storage.dir"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			Host:       v.GetString("database.host"),
			Port:       v.GetString("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
		API: APIConfig{
			BaseURL:  strings.TrimRight(v.GetString("api.baseURL"), "/"),
			Timeout:  v.GetDuration("api.timeout"),
			MaxTries: v.GetUint("api.maxTries"),
			Offline:  v.GetBool("api.offline"),
		},
	}
	if conf.Cache.TTL <= 0 {
		return nil, errors.Errorf("invalid cache TTL: %s", conf.Cache.TTL)
	}
	return conf, nil
}

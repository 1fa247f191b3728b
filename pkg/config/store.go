package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/caarlos0/env/v11"

	"github.com/andrej220/rune/pkg/config/configstore"
	"github.com/andrej220/rune/pkg/config/filestore"
	"github.com/andrej220/rune/pkg/config/mongostore"
)

type StoreType int

const (
	FileStore StoreType = iota
	MongoStore
)

var (
	ErrInvalidStoreType = errors.New("invalid store type")
)

// ParseStoreType maps the --config-store flag value to a StoreType.
func ParseStoreType(s string) (StoreType, error) {
	switch s {
	case "", "file":
		return FileStore, nil
	case "mongo":
		return MongoStore, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidStoreType, s)
	}
}

func (t StoreType) String() string {
	switch t {
	case FileStore:
		return "file"
	case MongoStore:
		return "mongo"
	default:
		return fmt.Sprintf("StoreType(%d)", int(t))
	}
}

type FileConfig struct {
	Path string `yaml:"path" json:"path" validate:"required"`
}

type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri" env:"RUNE_MONGO_URI" validate:"required"`
	DBName   string `yaml:"dbName" json:"dbName" env:"RUNE_MONGO_DB" envDefault:"rune"`
	CollName string `yaml:"collName" json:"collName" env:"RUNE_MONGO_COLLECTION" envDefault:"config"`
	ID       string `yaml:"id" json:"id" env:"RUNE_MONGO_ID" envDefault:"rune"`
}

// MongoConfigFromEnv reads RUNE_MONGO_* variables, falling back to the
// envDefault values. environ replaces the process environment when non-nil.
func MongoConfigFromEnv(environ map[string]string) (*MongoConfig, error) {
	cfg := &MongoConfig{}
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse mongo environment: %w", err)
	}
	return cfg, nil
}

// Store is a ConfigStore that may hold a connection. Close is a no-op for
// the file backend.
type Store interface {
	configstore.ConfigStore
	io.Closer
}

func NewStore(ctx context.Context, storeType StoreType, cfg any) (Store, error) {
	switch storeType {
	case FileStore:
		fileCfg, ok := cfg.(*FileConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for file store, expected *FileConfig")
		}
		return nopCloser{filestore.New(fileCfg.Path)}, nil
	case MongoStore:
		mongoCfg, ok := cfg.(*MongoConfig)
		if !ok {
			return nil, fmt.Errorf("invalid config type for mongo store, expected *MongoConfig")
		}
		if err := validate.Struct(mongoCfg); err != nil {
			return nil, fmt.Errorf("mongo store: %w", err)
		}
		ms, err := mongostore.New(ctx, mongoCfg.URI, mongoCfg.DBName, mongoCfg.CollName, mongoCfg.ID)
		if err != nil {
			return nil, err
		}
		return mongoCloser{ms}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

type nopCloser struct {
	configstore.ConfigStore
}

func (nopCloser) Close() error { return nil }

type mongoCloser struct {
	*mongostore.MongoStore
}

func (m mongoCloser) Close() error {
	return m.MongoStore.Close(context.Background())
}

// Load reads the configuration from store, fills unset fields with defaults,
// anchors a relative plugin_dir at baseDir, applies the environment overlay
// and validates the result.
func Load(ctx context.Context, store configstore.ConfigStore, environ map[string]string, baseDir string) (*Config, error) {
	cfg := &Config{}
	if store != nil {
		if err := store.Load(ctx, cfg); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	cfg.applyDefaults()
	cfg.ResolvePluginDir(baseDir)
	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

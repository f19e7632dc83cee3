package app

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	artifactcache "blueprint/internal/cache/artifact"
	recordscache "blueprint/internal/cache/records"
	"blueprint/internal/gateway/config"
	"blueprint/internal/gateway/repository/activity"
	artifactrepo "blueprint/internal/gateway/repository/artifact"
	"blueprint/internal/gateway/repository/document"
	"blueprint/internal/gateway/repository/records"
	"blueprint/internal/gateway/repository/warehouse"
)

type pipelineStores struct {
	documents document.Store
	records   records.Store
	artifact  artifactrepo.Store
	activity  activity.Feed
	warehouse warehouse.Warehouse
	closers   []func() error
}

func (s *pipelineStores) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func initStores(cfg *config.Config) (*pipelineStores, error) {
	s3Factory := newArtifactS3StoreFactory(cfg)

	var stores *pipelineStores
	var err error
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		stores, err = initPostgresStores(dsn, cfg, s3Factory)
	} else {
		stores, err = initInMemoryStores(cfg, s3Factory)
	}
	if err != nil {
		return nil, err
	}
	wh, err := chooseWarehouse(cfg)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}
	stores.warehouse = wh
	if c, ok := wh.(interface{ Close() error }); ok {
		stores.closers = append(stores.closers, c.Close)
	}
	return stores, nil
}

func newArtifactS3StoreFactory(cfg *config.Config) func() (artifactrepo.Store, error) {
	return func() (artifactrepo.Store, error) {
		s3Cfg := artifactrepo.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			Prefix:    cfg.Artifact.Prefix,
			UseSSL:    cfg.Artifact.UseSSL,
		}
		s3Store, err := artifactrepo.NewS3Store(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		log.Printf("artifact store: s3 bucket=%s endpoint=%s", s3Cfg.Bucket, s3Cfg.Endpoint)
		return s3Store, nil
	}
}

func initPostgresStores(dsn string, cfg *config.Config, s3Factory func() (artifactrepo.Store, error)) (*pipelineStores, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	artifactStore, err := chooseArtifactStore(cfg, artifactrepo.NewMemoryStore(), "in-memory", s3Factory)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Printf("document store: postgres")
	return &pipelineStores{
		documents: document.NewPostgresStore(db),
		records:   recordscache.NewCachedStore(records.NewPostgresStore(db), recordscache.DefaultCacheConfig()),
		artifact:  artifactStore,
		activity:  activity.Multi(activity.LogFeed{}, activity.NewPostgresFeed(db)),
		closers:   []func() error{db.Close},
	}, nil
}

func initInMemoryStores(cfg *config.Config, s3Factory func() (artifactrepo.Store, error)) (*pipelineStores, error) {
	artifactStore, err := chooseArtifactStore(cfg, artifactrepo.NewMemoryStore(), "in-memory", s3Factory)
	if err != nil {
		return nil, err
	}
	log.Printf("document store: in-memory")
	return &pipelineStores{
		documents: document.NewMemoryStore(),
		records:   recordscache.NewCachedStore(records.NewMemoryStore(), recordscache.DefaultCacheConfig()),
		artifact:  artifactStore,
		activity:  activity.LogFeed{},
	}, nil
}

func chooseArtifactStore(
	cfg *config.Config,
	fallback artifactrepo.Store,
	fallbackLabel string,
	s3Factory func() (artifactrepo.Store, error),
) (artifactrepo.Store, error) {
	var origin artifactrepo.Store
	if cfg.Artifact.CanUseS3() {
		s3Store, err := s3Factory()
		if err != nil {
			return nil, err
		}
		origin = s3Store
	} else {
		if cfg.Artifact.Enabled {
			log.Printf("artifact store: using %s fallback (s3 config incomplete)", fallbackLabel)
		}
		origin = fallback
	}
	if origin == nil {
		return nil, fmt.Errorf("artifact origin store is nil")
	}
	return artifactcache.NewCachedStore(origin, artifactcache.DefaultCacheConfig()), nil
}

// chooseWarehouse returns the SQLite sink when a path is configured and the
// in-memory sink otherwise. With exporting disabled no warehouse is needed.
func chooseWarehouse(cfg *config.Config) (warehouse.Warehouse, error) {
	if !cfg.Analytics.Enabled {
		log.Printf("analytics export: disabled")
		return nil, nil
	}
	if path := strings.TrimSpace(cfg.Analytics.SQLitePath); path != "" {
		wh, err := warehouse.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open analytics warehouse: %w", err)
		}
		log.Printf("analytics export: sqlite path=%s dataset=%s table=%s", path, cfg.Analytics.Dataset, cfg.Analytics.Table)
		return wh, nil
	}
	log.Printf("analytics export: in-memory dataset=%s table=%s", cfg.Analytics.Dataset, cfg.Analytics.Table)
	return warehouse.NewMemoryWarehouse(), nil
}

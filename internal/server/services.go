package server

import (
	"context"
	"fmt"

	"github.com/openmined/syftsync/internal/codec"
	"github.com/openmined/syftsync/internal/endpoint"
	"github.com/openmined/syftsync/internal/hasher"
	"github.com/openmined/syftsync/internal/index"
	"github.com/openmined/syftsync/internal/scan"
)

type Services struct {
	Index    *index.Store
	Hasher   *hasher.Scheduler
	Endpoint *endpoint.Local
	Codec    *codec.Codec // nil when compression is disabled
}

func NewServices(config *Config) (*Services, error) {
	store, err := index.NewStore(config.RootDir, index.Options{
		Capacity:      config.Cache.Capacity,
		TTL:           config.Cache.TTL,
		PurgeInterval: config.Cache.PurgeInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("index store: %w", err)
	}

	ignore := scan.NewIgnoreList(store.Root())
	ignore.Load()

	hashSvc := hasher.New(store, hasher.Config{
		Backlog: config.Hash.Backlog,
		History: config.Hash.History,
		Ignore:  ignore,
	})

	ep := endpoint.NewLocal(store, hashSvc, endpoint.LocalConfig{
		Policy:       config.Policy,
		MaxBlockSize: config.MaxBlockSize,
		Ignore:       ignore,
	})

	var blockCodec *codec.Codec
	if config.Compression != "none" {
		level := config.Compression
		if level == "" {
			level = DefaultCompression
		}
		if blockCodec, err = codec.New(level, uint64(max(config.MaxBlockSize, endpoint.DefaultMaxBlockSize))); err != nil {
			store.Close()
			return nil, err
		}
	}

	return &Services{
		Index:    store,
		Hasher:   hashSvc,
		Endpoint: ep,
		Codec:    blockCodec,
	}, nil
}

// Start runs the hash scheduler until ctx is done
func (s *Services) Start(ctx context.Context) error {
	if err := s.Hasher.Run(ctx); err != nil {
		return fmt.Errorf("hash scheduler: %w", err)
	}
	return nil
}

func (s *Services) Shutdown() {
	if s.Codec != nil {
		s.Codec.Close()
	}
	s.Index.Close()
}

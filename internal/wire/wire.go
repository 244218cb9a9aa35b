// Package wire builds the full collaborator graph in topological order:
// plain functions and struct literals, no registry, no reflection, no
// back-edges. The detector and transform client are passed into the
// orchestrator, never the reverse, so there is no cycle to break.
package wire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/danielloader/imgresize/internal/cachecore"
	"github.com/danielloader/imgresize/internal/config"
	"github.com/danielloader/imgresize/internal/detector"
	"github.com/danielloader/imgresize/internal/metadata"
	"github.com/danielloader/imgresize/internal/orchestrator"
	"github.com/danielloader/imgresize/internal/resilience"
	"github.com/danielloader/imgresize/internal/storage"
	"github.com/danielloader/imgresize/internal/transform"
	"github.com/danielloader/imgresize/internal/transformclient"
	"github.com/danielloader/imgresize/internal/types"
)

// Build wires every collaborator in dependency order and returns the
// fully assembled HTTP handler. Everything it needs beyond config.File's
// declarative origins/derivatives comes from cfg.Env: the transform
// primitive URL and the S3 bucket/prefix backing the persistent cache.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*orchestrator.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Env.S3ForcePathStyle
	})

	entries, err := buildOrigins(ctx, cfg.File.Origins, cfg.Env.S3ForcePathStyle)
	if err != nil {
		return nil, err
	}

	retryInitial, retryMax, retryAttempts := cfg.File.Retry.Durations()
	fetcher := &storage.Fetcher{
		Entries:       entries,
		Secrets:       cfg.Env,
		SecurityLevel: types.SecurityLevel(cfg.File.SecurityLevel),
		Retry:         resilience.NewRetrier(retryAttempts, retryInitial, retryMax),
	}

	resolver := transform.New(cfg.File.Derivatives)

	det := detector.New(
		cfg.File.Detection.LRUTTLSeconds,
		cfg.File.Detection.LRUMaxSize,
		detector.Thresholds{LowClassMax: cfg.File.Detection.LowClassMax, HighClassMin: cfg.File.Detection.HighClassMin},
	)

	kv := cachecore.NewS3KV(s3Client, cfg.Env.CacheBucket, cfg.Env.CachePrefix)
	core := cachecore.New(kv, cfg.File, logger)

	tc := transformclient.NewHTTPClient(cfg.Env.TransformPrimitiveURL)

	metadataKV := cachecore.NewS3KV(s3Client, cfg.Env.CacheBucket, cfg.Env.CachePrefix+"/"+cfg.Env.MetadataCacheKV)
	meta := metadata.New(cfg.File.Detection.LRUMaxSize, metadataKV, tc, time.Hour, logger)

	return orchestrator.New(cfg, resolver, det, fetcher, core, tc, meta, logger), nil
}

// buildOrigins translates the declarative OriginFile list into live
// storage.Entry transports, picking S3 vs HTTP transport by the
// configured service.
func buildOrigins(ctx context.Context, files []config.OriginFile, forcePathStyle bool) ([]storage.Entry, error) {
	entries := make([]storage.Entry, 0, len(files))
	for _, of := range files {
		origin := of.ToOrigin()

		var transport storage.OriginFetcher
		if of.Service == "s3" {
			s3Origin, err := storage.NewS3Origin(ctx, of.DomainPattern, of.PathPrefix, forcePathStyle)
			if err != nil {
				return nil, fmt.Errorf("building S3 origin %s: %w", of.ID, err)
			}
			transport = s3Origin
		} else {
			transport = storage.NewHTTPOrigin("https://"+of.DomainPattern, types.SourceRemote)
		}

		entries = append(entries, storage.Entry{Origin: origin, Transport: transport})
	}
	return entries, nil
}

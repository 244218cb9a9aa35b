// Package cachecore implements the two-layer cache topology, fingerprinting,
// bypass scoring, TTL computation, cache-tag generation, retrieval,
// background store, and tag/path purge.
package cachecore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/danielloader/imgresize/internal/types"
)

// KV is the persistent layer-B store: keyed by fingerprint, with values
// opaque and metadata alongside in a sidecar. Narrowed from a generic
// cache.Store interface to this system's get/put/delete/list needs and
// widened with tag-index support.
type KV interface {
	Get(ctx context.Context, key string) (types.CacheEntry, bool, error)
	Put(ctx context.Context, key string, entry types.CacheEntry) error
	Delete(ctx context.Context, key string) error
	// ListByTag returns every fingerprint recorded against tag in the
	// secondary index. Entries may have already been deleted, since the
	// index is best-effort; callers must tolerate misses.
	ListByTag(ctx context.Context, tag string) ([]string, error)
	// IndexTags appends fingerprint under each of tags in the secondary
	// index, appending then trimming.
	IndexTags(ctx context.Context, fingerprint string, tags []string) error
	// DeindexTags removes fingerprint from each of tags' index entries.
	DeindexTags(ctx context.Context, fingerprint string, tags []string) error
}

// S3KV is a KV backed by S3: a data-object + ".meta.json" sidecar
// convention, reused here for CacheEntry metadata instead of OCI
// ObjectMeta, plus tag-index objects stored under a "tag/<tag>" key
// prefix.
type S3KV struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3KV builds an S3KV over an already-configured S3 client. The client
// is of the same SDK type the storage fetcher's S3Origin uses, but S3Origin
// builds its own client instance rather than sharing this one.
func NewS3KV(client *s3.Client, bucket, prefix string) *S3KV {
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	return &S3KV{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3KV) dataKey(key string) string { return s.prefix + key }
func (s *S3KV) metaKey(key string) string { return s.prefix + key + ".meta.json" }
func (s *S3KV) tagKey(tag string) string  { return s.prefix + "tag/" + tag }

type entryMetaJSON struct {
	Meta types.CacheEntryMeta `json:"meta"`
}

// Get implements KV.Get. Missing or corrupt metadata is not an error at
// this layer; cachecore.Get (the public retrieval path) applies safe
// defaults.
func (s *S3KV) Get(ctx context.Context, key string) (types.CacheEntry, bool, error) {
	metaOut, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.metaKey(key)),
	})
	if isNotFound(err) {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("reading cache meta sidecar: %w", err)
	}
	metaBytes, err := io.ReadAll(metaOut.Body)
	metaOut.Body.Close()
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("reading cache meta sidecar: %w", err)
	}
	var wrapped entryMetaJSON
	_ = json.Unmarshal(metaBytes, &wrapped) // corrupt metadata -> zero value, handled by safe defaults upstream

	dataOut, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.dataKey(key)),
	})
	if isNotFound(err) {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("reading cache data object: %w", err)
	}
	defer dataOut.Body.Close()
	body, err := io.ReadAll(dataOut.Body)
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("reading cache data object: %w", err)
	}

	return types.CacheEntry{Fingerprint: key, Value: body, Meta: wrapped.Meta}, true, nil
}

// Put writes the data object and its metadata sidecar. Race conditions are
// benign: writes are idempotent on fingerprint, so a concurrent writer
// producing the same bytes is harmless.
func (s *S3KV) Put(ctx context.Context, key string, entry types.CacheEntry) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.dataKey(key)),
		Body:        bytes.NewReader(entry.Value),
		ContentType: aws.String(entry.Meta.ContentType),
	})
	if err != nil {
		return fmt.Errorf("putting cache data object: %w", err)
	}

	metaBytes, err := json.Marshal(entryMetaJSON{Meta: entry.Meta})
	if err != nil {
		return fmt.Errorf("marshalling cache meta sidecar: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.metaKey(key)),
		Body:        bytes.NewReader(metaBytes),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting cache meta sidecar: %w", err)
	}
	return nil
}

func (s *S3KV) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.dataKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting cache data object: %w", err)
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.metaKey(key)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting cache meta sidecar: %w", err)
	}
	return nil
}

// ListByTag reads the tag index object (a newline-separated fingerprint
// list) and returns its contents. A missing index object means "no
// entries known for this tag", not an error.
func (s *S3KV) ListByTag(ctx context.Context, tag string) ([]string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.tagKey(tag)),
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tag index: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading tag index: %w", err)
	}
	return splitNonEmpty(string(data)), nil
}

// IndexTags appends fingerprint to each tag's index object. This is a
// read-modify-write, not atomic; tag-index updates are best-effort, and
// purge tolerates stale/missing entries as a result.
func (s *S3KV) IndexTags(ctx context.Context, fingerprint string, tags []string) error {
	for _, tag := range tags {
		existing, err := s.ListByTag(ctx, tag)
		if err != nil {
			continue // best-effort: one tag failing doesn't abort the rest
		}
		existing = appendUnique(existing, fingerprint)
		if err := s.writeTagIndex(ctx, tag, existing); err != nil {
			continue
		}
	}
	return nil
}

// DeindexTags removes fingerprint from each tag's index, trimming the list.
func (s *S3KV) DeindexTags(ctx context.Context, fingerprint string, tags []string) error {
	for _, tag := range tags {
		existing, err := s.ListByTag(ctx, tag)
		if err != nil {
			continue
		}
		existing = removeValue(existing, fingerprint)
		_ = s.writeTagIndex(ctx, tag, existing)
	}
	return nil
}

func (s *S3KV) writeTagIndex(ctx context.Context, tag string, fingerprints []string) error {
	body := strings.Join(fingerprints, "\n")
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.tagKey(tag)),
		Body:        strings.NewReader(body),
		ContentType: aws.String("text/plain"),
	})
	return err
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "NotFound")
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func removeValue(list []string, v string) []string {
	out := list[:0]
	for _, existing := range list {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}

package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/danielloader/imgresize/internal/errs"
	"github.com/danielloader/imgresize/internal/types"
)

// S3Origin fetches source image bytes from an S3-compatible object store.
// Same client construction and bucket/prefix handling as the persistent
// cache's S3KV, but read-only: a source origin is never written to by
// this service.
type S3Origin struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Origin creates an S3Origin. Credentials/region/endpoint resolve via
// the standard AWS SDK default credential chain.
func NewS3Origin(ctx context.Context, bucket, prefix string, forcePathStyle bool) (*S3Origin, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = forcePathStyle
	})
	if prefix != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/"
	}
	return &S3Origin{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *S3Origin) Fetch(ctx context.Context, path string, _ map[string]string) (types.StorageResult, bool, error) {
	key := s.prefix + strings.TrimPrefix(path, "/")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return types.StorageResult{}, true, errs.New(errs.KindOriginNotFound, err, "object not found").WithURL(key)
		}
		return types.StorageResult{}, false, errs.New(errs.KindOriginFetchFailed, err, "S3 GetObject").WithURL(key)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return types.StorageResult{}, false, errs.New(errs.KindOriginFetchFailed, err, "reading S3 object body").WithURL(key)
	}

	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	var size int64
	if out.ContentLength != nil {
		size = *out.ContentLength
	}

	return types.StorageResult{
		Body:        body,
		SourceTag:   types.SourceObjectStore,
		ContentType: contentType,
		Size:        size,
		Path:        path,
	}, false, nil
}

func isNotFound(err error) bool {
	var re *smithyhttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode() == 404
	}
	return false
}

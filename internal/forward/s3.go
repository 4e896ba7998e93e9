package forward

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/lqhuy/ferry/internal/config"
	"github.com/lqhuy/ferry/internal/logging"
)

// S3Forwarder puts assembled files into an S3 bucket instead of POSTing
// them to an HTTP receiver. The original transfer metadata rides along as
// object metadata so the downstream side loses nothing.
type S3Forwarder struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an S3 forwarder from the forward.s3 config section. With no
// static keys configured the default credential chain applies (env, shared
// config, instance role).
func NewS3(ctx context.Context, cfg config.S3Config) (*S3Forwarder, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Forwarder{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.KeyPrefix,
	}, nil
}

// Name implements Forwarder.
func (f *S3Forwarder) Name() string { return "s3" }

// Forward streams the file into the bucket under
// <prefix><username>/<file_id>_<name>. The file ID makes keys unique per
// transfer; repeated uploads of the same name never clobber each other.
func (f *S3Forwarder) Forward(ctx context.Context, req Request) (string, error) {
	key := f.prefix + req.Username + "/" + req.FileID + "_" + objectName(req.FileName)

	meta := map[string]string{
		"file-name": req.FileName,
		"file-size": strconv.FormatUint(req.FileSize, 10),
		"file-id":   req.FileID,
	}
	if req.FolderID != "" {
		meta["folder-id"] = req.FolderID
	}

	size := int64(req.FileSize)
	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(f.bucket),
		Key:           aws.String(key),
		Body:          req.Body,
		ContentLength: &size,
		Metadata:      meta,
	})
	if err != nil {
		logging.Error("s3 forward failed",
			zap.String("bucket", f.bucket),
			zap.String("key", key),
			zap.Error(err))
		return "", fmt.Errorf("put object %q: %w", key, err)
	}

	logging.Info("file forwarded to s3",
		zap.String("bucket", f.bucket),
		zap.String("key", key),
		zap.Uint64("size", req.FileSize))
	return key, nil
}

// objectName flattens a client-declared file name into something safe to
// embed in an object key. Path separators collapse to the base name and
// any remaining control characters are dropped.
func objectName(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)
}

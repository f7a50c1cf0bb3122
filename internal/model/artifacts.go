package model

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArtifactConfig configures the S3-compatible object store that holds model
// artifacts. Empty BucketName disables staging entirely; runtimes then pull
// models through their own channels.
type ArtifactConfig struct {
	BucketName  string `yaml:"bucket_name"`
	Region      string `yaml:"region"`
	AccessKeyID string `yaml:"access_key_id"`
	SecretKey   string `yaml:"secret_key"`
	Endpoint    string `yaml:"endpoint"` // custom endpoint for MinIO etc.
	PathPrefix  string `yaml:"path_prefix"`
}

// Enabled reports whether artifact staging is configured.
func (c ArtifactConfig) Enabled() bool { return c.BucketName != "" }

// objectLister is the slice of the S3 API the store needs; *s3.Client
// satisfies it, tests provide fakes.
type objectLister interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ArtifactStore downloads model artifacts from an S3-compatible bucket into
// the local model cache directory, skipping files already present.
type ArtifactStore struct {
	cfg    ArtifactConfig
	client objectLister
	logger *slog.Logger
}

// NewArtifactStore builds a store from config. Static credentials are used
// when provided; otherwise the default AWS credential chain applies.
func NewArtifactStore(ctx context.Context, cfg ArtifactConfig, logger *slog.Logger) (*ArtifactStore, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("artifacts: bucket_name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ArtifactStore{cfg: cfg, client: client, logger: logger}, nil
}

// newArtifactStoreWithClient is the test seam.
func newArtifactStoreWithClient(cfg ArtifactConfig, client objectLister, logger *slog.Logger) *ArtifactStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactStore{cfg: cfg, client: client, logger: logger}
}

// Stage ensures every artifact of modelName under the configured prefix
// exists in cacheDir, downloading absent files. Present files are never
// re-fetched, so staging an already-cached model is cheap.
func (s *ArtifactStore) Stage(ctx context.Context, modelName, cacheDir string) error {
	prefix := path.Join(s.cfg.PathPrefix, modelName) + "/"

	var fetched, skipped int
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.cfg.BucketName),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("artifacts: list %s: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" || strings.HasSuffix(key, "/") {
				continue
			}

			dest := filepath.Join(cacheDir, filepath.FromSlash(modelName), filepath.FromSlash(rel))
			if info, err := os.Stat(dest); err == nil && info.Size() == aws.ToInt64(obj.Size) {
				skipped++
				continue
			}

			if err := s.fetch(ctx, key, dest); err != nil {
				return err
			}
			fetched++
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if fetched == 0 && skipped == 0 {
		return fmt.Errorf("artifacts: no objects under %s in bucket %s", prefix, s.cfg.BucketName)
	}

	s.logger.Info("model artifacts staged",
		"model", modelName,
		"fetched", fetched,
		"cached", skipped,
	)
	return nil
}

func (s *ArtifactStore) fetch(ctx context.Context, key, dest string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("artifacts: get %s: %w", key, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("artifacts: create dir for %s: %w", dest, err)
	}

	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("artifacts: create %s: %w", tmp, err)
	}

	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("artifacts: download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

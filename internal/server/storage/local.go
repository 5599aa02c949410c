package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/songletters/internal/server/models"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/locals"
	"github.com/dmitrijs2005/songletters/internal/server/repositories/repomanager"
)

// SQLiteTier is the local fallback kept in a SQLite file next to the server.
type SQLiteTier struct {
	repo locals.Repository
}

func NewSQLiteTier(repo locals.Repository) *SQLiteTier {
	return &SQLiteTier{repo: repo}
}

func (t *SQLiteTier) Name() string { return TierLocal }

func (t *SQLiteTier) Get(ctx context.Context, key string) (*models.Record, error) {
	rec, err := t.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	rec.Tier = TierLocal
	return rec, nil
}

func (t *SQLiteTier) Put(ctx context.Context, rec *models.Record) error {
	return t.repo.Put(ctx, rec)
}

func (t *SQLiteTier) ListPending(ctx context.Context) ([]*models.Record, error) {
	return t.repo.ListPending(ctx)
}

// S3Options configures the object-store flavour of the local tier.
type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
}

// seams for tests
var (
	loadDefaultAWSConfig  = awsconfig.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// BuildLocalTier picks the local fallback implementation from a DSN:
// "sqlite://<path>" or "s3://<bucket>/<prefix>". An empty DSN disables the
// tier. The returned closer releases the underlying handle.
func BuildLocalTier(ctx context.Context, dsn string, opts S3Options) (LocalTier, io.Closer, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, nopCloser{}, nil

	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, nil, fmt.Errorf("local fallback dsn %q: missing path", dsn)
		}
		db, repo, err := repomanager.OpenLocal(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLiteTier(repo), db, nil

	case strings.HasPrefix(dsn, "s3://"):
		u, err := url.Parse(dsn)
		if err != nil || u.Host == "" {
			return nil, nil, fmt.Errorf("local fallback dsn %q: expected s3://bucket/prefix", dsn)
		}
		cfgOpts := []func(*awsconfig.LoadOptions) error{}
		if opts.Region != "" {
			cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
		}
		if opts.AccessKey != "" {
			cfgOpts = append(cfgOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
		}
		cfg, err := loadDefaultAWSConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
			if opts.BaseEndpoint != "" {
				o.BaseEndpoint = aws.String(opts.BaseEndpoint)
				o.UsePathStyle = true
			}
		})
		return NewObjectTier(client, u.Host, strings.Trim(u.Path, "/")), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("local fallback dsn %q: unsupported scheme", dsn)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

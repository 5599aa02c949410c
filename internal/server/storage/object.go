package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/server/models"
)

// ObjectAPI is the subset of *s3.Client the object tier uses.
type ObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ObjectTier keeps the local fallback in an S3-compatible bucket for
// nodes without a writable disk. Records live at <prefix>/letters/<key>.json;
// pending records also get an empty marker under <prefix>/pending/.
type ObjectTier struct {
	api    ObjectAPI
	bucket string
	prefix string
}

func NewObjectTier(api ObjectAPI, bucket, prefix string) *ObjectTier {
	return &ObjectTier{api: api, bucket: bucket, prefix: prefix}
}

func (t *ObjectTier) Name() string { return TierLocal }

func (t *ObjectTier) letterKey(key string) string  { return path.Join(t.prefix, "letters", key+".json") }
func (t *ObjectTier) pendingKey(key string) string { return path.Join(t.prefix, "pending", key) }

func (t *ObjectTier) Get(ctx context.Context, key string) (*models.Record, error) {
	rec, _, err := t.get(ctx, key)
	if err != nil {
		return nil, err
	}
	rec.Tier = TierLocal
	return rec, nil
}

func (t *ObjectTier) get(ctx context.Context, key string) (*models.Record, string, error) {
	out, err := t.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.letterKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", common.ErrorNotFound
		}
		return nil, "", fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 read %s: %w", key, err)
	}
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, "", fmt.Errorf("s3 decode %s: %w", key, err)
	}
	return &rec, aws.ToString(out.ETag), nil
}

// Put writes rec unless the stored copy is newer. The write is conditional
// on the ETag read first; a concurrent writer makes it re-check once.
func (t *ObjectTier) Put(ctx context.Context, rec *models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		existing, etag, err := t.get(ctx, rec.Key)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if existing != nil && !rec.NewerThan(existing) {
			return nil
		}

		in := &s3.PutObjectInput{
			Bucket:      aws.String(t.bucket),
			Key:         aws.String(t.letterKey(rec.Key)),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		}
		if existing == nil {
			in.IfNoneMatch = aws.String("*")
		} else if etag != "" {
			in.IfMatch = aws.String(etag)
		}
		_, err = t.api.PutObject(ctx, in)
		if err == nil {
			break
		}
		if isPreconditionFailed(err) && attempt == 0 {
			continue
		}
		return fmt.Errorf("s3 put %s: %w", rec.Key, err)
	}
	return t.markPending(ctx, rec.Key, rec.Pending)
}

func (t *ObjectTier) markPending(ctx context.Context, key string, pending bool) error {
	if pending {
		_, err := t.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(t.bucket),
			Key:    aws.String(t.pendingKey(key)),
			Body:   bytes.NewReader(nil),
		})
		if err != nil {
			return fmt.Errorf("s3 mark pending %s: %w", key, err)
		}
		return nil
	}
	_, err := t.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.pendingKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 clear pending %s: %w", key, err)
	}
	return nil
}

func (t *ObjectTier) ListPending(ctx context.Context) ([]*models.Record, error) {
	prefix := t.pendingKey("")
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var (
		out   []*models.Record
		token *string
	)
	for {
		page, err := t.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(t.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 list pending: %w", err)
		}
		for _, obj := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			rec, _, err := t.get(ctx, key)
			if errors.Is(err, common.ErrorNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if rec.Pending {
				out = append(out, rec)
			}
		}
		if !aws.ToBool(page.IsTruncated) {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}

// internal/folder/s3.go - folder backed by an S3 bucket prefix
package folder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/FairForge/metavault/internal/sidecar"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 client used by the S3 folder
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures NewS3
type S3Options struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3 implements Folder for one "directory" (key prefix) of a bucket
type S3 struct {
	client S3API
	bucket string
	prefix string
	locks  *PathLocks
	logger *zap.Logger
}

// NewS3 creates an S3 folder. Static credentials are used when AccessKey is
// set, otherwise the default AWS credential chain.
func NewS3(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 folder: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return NewS3WithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

// NewS3WithClient wraps an existing client
func NewS3WithClient(client S3API, bucket, prefix string, logger *zap.Logger) *S3 {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{
		client: client,
		bucket: bucket,
		prefix: prefix,
		locks:  NewPathLocks(),
		logger: logger,
	}
}

func (f *S3) key(name string) string {
	return path.Join(f.prefix, name)
}

// Entries lists objects directly under the prefix
func (f *S3) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(f.prefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", f.bucket, f.prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), f.prefix)
			if name == "" {
				continue
			}
			entries = append(entries, Entry{
				Name:         name,
				Size:         aws.ToInt64(obj.Size),
				LastModified: Millis(aws.ToTime(obj.LastModified)),
				Type:         TypeByName(name),
			})
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), f.prefix), "/")
			if name == "" {
				continue
			}
			entries = append(entries, Entry{Name: name, IsDir: true})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	f.logger.Debug("S3.Entries",
		zap.String("bucket", f.bucket),
		zap.String("prefix", f.prefix),
		zap.Int("count", len(entries)))

	return entries, nil
}

func (f *S3) get(ctx context.Context, name string) ([]byte, error) {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errNotFound(f.bucket+"/"+f.prefix, name)
		}
		return nil, fmt.Errorf("get object %s: %w", f.key(name), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", f.key(name), err)
	}
	return data, nil
}

// ReadAsset downloads an asset object
func (f *S3) ReadAsset(ctx context.Context, name string) ([]byte, error) {
	if !validName(name) {
		return nil, errInvalidName(name)
	}
	return f.get(ctx, name)
}

// ReadSidecar downloads the sidecar object of an asset
func (f *S3) ReadSidecar(ctx context.Context, assetName string) (string, error) {
	if !validName(assetName) {
		return "", errInvalidName(assetName)
	}
	data, err := f.get(ctx, sidecar.Name(assetName))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteSidecar uploads the sidecar object of an asset
func (f *S3) WriteSidecar(ctx context.Context, assetName, content string) error {
	if !validName(assetName) {
		return errInvalidName(assetName)
	}
	key := f.key(sidecar.Name(assetName))

	unlock := f.locks.Lock(key)
	defer unlock()

	_, err := f.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(f.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(content)),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	f.logger.Debug("stored sidecar in S3",
		zap.String("key", key),
		zap.String("bucket", f.bucket))

	return nil
}

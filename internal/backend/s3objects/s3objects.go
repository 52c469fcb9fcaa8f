// ABOUTME: S3-compatible object storage for content media (AWS S3, MinIO or the backend's S3 gateway)
// ABOUTME: Implements backend.Objects on aws-sdk-go-v2 with path-style addressing

package s3objects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/safespace/safespace-admin/internal/backend"
)

// Options configures a Store.
type Options struct {
	Endpoint        string // empty means AWS
	Region          string
	AccessKeyID     string // empty means the default credential chain
	SecretAccessKey string
	PublicBaseURL   string // prefix for public URLs, defaults to Endpoint
	Logger          *slog.Logger
}

// api is the subset of *s3.Client the store uses.
type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Store implements backend.Objects on an S3-compatible service.
type Store struct {
	client     api
	publicBase string
	logger     *slog.Logger
}

// New loads AWS configuration and returns a Store.
func New(ctx context.Context, opts Options) (*Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	endpoint := cfg.BaseEndpoint
	if opts.Endpoint != "" {
		endpoint = aws.String(opts.Endpoint)
	}

	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: endpoint,
		UsePathStyle: true,
	})

	publicBase := opts.PublicBaseURL
	if publicBase == "" {
		switch {
		case opts.Endpoint != "":
			publicBase = opts.Endpoint
		default:
			publicBase = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
	}
	return newStore(client, publicBase, opts.Logger), nil
}

func newStore(client api, publicBase string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:     client,
		publicBase: strings.TrimRight(publicBase, "/"),
		logger:     logger.With("component", "s3objects"),
	}
}

// Upload stores body at path inside bucket and returns the stored path.
func (s *Store) Upload(ctx context.Context, bucket, path string, body io.Reader, opts backend.UploadOptions) (string, error) {
	key := strings.TrimLeft(path, "/")

	if !opts.Upsert {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
		if err == nil {
			return "", &backend.Error{Status: http.StatusConflict, Code: backend.CodeDuplicateObject, Message: "The resource already exists"}
		}
		if !isNotFound(err) {
			return "", mapError(err)
		}
	}

	// Signing needs a seekable body.
	rs, ok := body.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("reading upload body: %w", err)
		}
		rs = bytes.NewReader(buf)
	}

	in := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   rs,
	}
	if opts.ContentType != "" {
		in.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		in.CacheControl = aws.String("max-age=" + opts.CacheControl)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", mapError(err)
	}
	s.logger.Debug("stored object", "bucket", bucket, "key", key)
	return key, nil
}

// List returns the objects directly under prefix.
func (s *Store) List(ctx context.Context, bucket, prefix string, opts backend.ListOptions) ([]backend.ObjectInfo, error) {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	search := strings.ToLower(opts.Search)
	out := []backend.ObjectInfo{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError(err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(name), search) {
				continue
			}
			info := backend.ObjectInfo{Name: name, Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				info.UpdatedAt = obj.LastModified.UTC()
			}
			out = append(out, info)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Remove deletes the objects at paths. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	ids := make([]types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(strings.TrimLeft(p, "/"))})
	}

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return mapError(err)
	}
	for _, e := range out.Errors {
		if aws.ToString(e.Code) == "NoSuchKey" {
			continue
		}
		return &backend.Error{
			Status:  http.StatusBadRequest,
			Code:    aws.ToString(e.Code),
			Message: fmt.Sprintf("removing %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)),
		}
	}
	return nil
}

// PublicURL returns the public URL of an object.
func (s *Store) PublicURL(bucket, path string) string {
	segs := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.publicBase + "/" + url.PathEscape(bucket) + "/" + strings.Join(segs, "/")
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}

// mapError converts SDK errors into backend errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	status := 0
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		status = re.HTTPStatusCode()
	}

	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return fmt.Errorf("%w: %v", backend.ErrUnavailable, err)
	}
	msg := ae.ErrorMessage()
	if isNotFound(err) || ae.ErrorCode() == "NoSuchBucket" {
		if msg == "" {
			msg = "Object not found"
		}
		return &backend.Error{Status: http.StatusNotFound, Code: backend.CodeObjectNotFound, Message: msg}
	}
	if msg == "" {
		msg = ae.ErrorCode()
	}
	return &backend.Error{Status: status, Code: ae.ErrorCode(), Message: msg}
}

// Package objectstore stores attachment files in S3.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"
)

// MaxDownloadSize bounds files fetched by UploadFromURL.
const MaxDownloadSize = 50 << 20

// RedirectError means the bucket lives in another region than the client
// was configured for. Region is empty when S3 did not say which one.
type RedirectError struct {
	Region string
	Err    error
}

func (e *RedirectError) Error() string {
	if e.Region == "" {
		return fmt.Sprintf("bucket redirect: %v", e.Err)
	}
	return fmt.Sprintf("bucket redirect to region %s: %v", e.Region, e.Err)
}

func (e *RedirectError) Unwrap() error {
	return e.Err
}

// Config describes the bucket and optional static credentials.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store uploads objects to one bucket. When S3 answers with a permanent
// redirect the upload is retried once against the bucket's real region, and
// that region is used for every later call.
type S3Store struct {
	api     objectAPI
	presign presigner
	bucket  string
	http    *http.Client

	mu     sync.RWMutex
	region string
}

// New builds an S3Store from the default AWS configuration chain, using the
// static credentials when both are given.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &S3Store{
		api:     client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		http:    &http.Client{},
	}, nil
}

// Upload stores body under key.
func (s *S3Store) Upload(ctx context.Context, body []byte, key, contentType string) error {
	err := s.put(ctx, body, key, contentType)

	var redirect *RedirectError
	if !errors.As(err, &redirect) {
		return err
	}

	region := redirect.Region
	if region == "" {
		region, err = manager.GetBucketRegion(ctx, s.api, s.bucket)
		if err != nil {
			return fmt.Errorf("failed to resolve region of bucket %s: %w", s.bucket, err)
		}
	}
	log.WithFields(log.Fields{"bucket": s.bucket, "region": region}).Warn("Bucket redirected, retrying in its region")
	s.setRegion(region)

	return s.put(ctx, body, key, contentType)
}

// UploadFromURL downloads url and stores the body under key.
func (s *S3Store) UploadFromURL(ctx context.Context, url, key, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download file: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return fmt.Errorf("failed to read downloaded file: %w", err)
	}
	if len(body) > MaxDownloadSize {
		return fmt.Errorf("file is larger than %d bytes", MaxDownloadSize)
	}
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return s.Upload(ctx, body, key, contentType)
}

// SignedReadURL returns a time-limited GET URL for key.
func (s *S3Store) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl), func(o *s3.PresignOptions) {
		if region := s.currentRegion(); region != "" {
			o.ClientOptions = append(o.ClientOptions, withRegion(region))
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *S3Store) put(ctx context.Context, body []byte, key, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	var optFns []func(*s3.Options)
	if region := s.currentRegion(); region != "" {
		optFns = append(optFns, withRegion(region))
	}

	if _, err := s.api.PutObject(ctx, in, optFns...); err != nil {
		if redirect := asRedirect(err); redirect != nil {
			return redirect
		}
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) currentRegion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.region
}

func (s *S3Store) setRegion(region string) {
	s.mu.Lock()
	s.region = region
	s.mu.Unlock()
}

func withRegion(region string) func(*s3.Options) {
	return func(o *s3.Options) {
		o.Region = region
	}
}

var endpointRegion = regexp.MustCompile(`\.s3[.-]([a-z0-9-]+)\.amazonaws\.com`)

// asRedirect turns an S3 permanent redirect into a *RedirectError, taking the
// region from the x-amz-bucket-region header or the endpoint in the message.
func asRedirect(err error) *RedirectError {
	var apiErr smithy.APIError
	isRedirect := errors.As(err, &apiErr) && apiErr.ErrorCode() == "PermanentRedirect"

	var respErr *awshttp.ResponseError
	hasResp := errors.As(err, &respErr) && respErr.ResponseError != nil &&
		respErr.Response != nil && respErr.Response.Response != nil
	if hasResp && respErr.HTTPStatusCode() == http.StatusMovedPermanently {
		isRedirect = true
	}
	if !isRedirect {
		return nil
	}

	redirect := &RedirectError{Err: err}
	if hasResp {
		redirect.Region = respErr.Response.Header.Get("X-Amz-Bucket-Region")
	}
	if redirect.Region == "" {
		if m := endpointRegion.FindStringSubmatch(err.Error()); m != nil {
			redirect.Region = m[1]
		}
	}
	return redirect
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"vizboard/dashboard/internal/config"
	"vizboard/dashboard/internal/service"
)

// S3Storage implements service.ObjectStorage against any S3-compatible
// backend (AWS or MinIO).
type S3Storage struct {
	config   *config.Config
	uploader *manager.Uploader
	s3Client *s3.Client
}

func newClient(cfg *config.Config, accessKey, secretKey string) *s3.Client {
	s3Opts := []func(*s3.Options){}

	if cfg.S3Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	awsCfg := aws.Config{
		Region:      cfg.S3Region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}

	return s3.NewFromConfig(awsCfg, s3Opts...)
}

func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	s3Client := newClient(cfg, cfg.S3AccessKeyID, cfg.S3SecretAccessKey)

	storage := &S3Storage{
		config:   cfg,
		uploader: manager.NewUploader(s3Client),
		s3Client: s3Client,
	}

	log.Printf("S3 storage initialized with endpoint: %s", cfg.S3Endpoint)
	return storage, nil
}

func (s *S3Storage) ListContainers(ctx context.Context) ([]string, error) {
	out, err := s.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		names = append(names, aws.ToString(b.Name))
	}
	return names, nil
}

func (s *S3Storage) CreateContainer(ctx context.Context, name string, publicPolicy bool) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(name)}
	if publicPolicy {
		input.ACL = types.BucketCannedACLPublicReadWrite
	}

	_, err := s.s3Client.CreateBucket(ctx, input)
	if err != nil {
		// Already owning the bucket is success for our purposes.
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if asAny(err, &owned) || asAny(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", name, err)
	}
	return nil
}

func (s *S3Storage) DeleteContainer(ctx context.Context, name string) error {
	_, err := s.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)})
	if err != nil {
		return fmt.Errorf("failed to delete bucket %s: %w", name, err)
	}
	return nil
}

// GrantPublicPolicy attaches a public read/write bucket policy. Used by the
// bootstrap cascade when plain creation left the bucket unwritable.
func (s *S3Storage) GrantPublicPolicy(ctx context.Context, name string) error {
	policy := fmt.Sprintf(`{
		"Version": "2012-10-17",
		"Statement": [{
			"Effect": "Allow",
			"Principal": {"AWS": ["*"]},
			"Action": ["s3:GetObject", "s3:PutObject", "s3:DeleteObject"],
			"Resource": ["arn:aws:s3:::%s/*"]
		}]
	}`, name)

	_, err := s.s3Client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(name),
		Policy: aws.String(policy),
	})
	if err != nil {
		return fmt.Errorf("failed to put bucket policy for %s: %w", name, err)
	}
	return nil
}

func (s *S3Storage) PutObject(ctx context.Context, container, path string, data []byte, opts service.PutOptions) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if opts.PublicRead {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	result, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	if result.Location != "" {
		return result.Location, nil
	}
	return s.objectURL(container, path), nil
}

func (s *S3Storage) DeleteObject(ctx context.Context, container, path string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(container),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

// MergeChunks concatenates already-uploaded chunk objects into the final
// object with a server-side multipart copy, in chunk order. No chunk bytes
// travel through this process again.
func (s *S3Storage) MergeChunks(ctx context.Context, container, path string, chunkPaths []string, contentType string) (string, error) {
	createInput := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(container),
		Key:    aws.String(path),
	}
	if contentType != "" {
		createInput.ContentType = aws.String(contentType)
	}

	created, err := s.s3Client.CreateMultipartUpload(ctx, createInput)
	if err != nil {
		return "", fmt.Errorf("failed to start merge: %w", err)
	}
	uploadID := created.UploadId

	abort := func() {
		_, abortErr := s.s3Client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(container),
			Key:      aws.String(path),
			UploadId: uploadID,
		})
		if abortErr != nil {
			log.Printf("failed to abort merge of %s: %v", path, abortErr)
		}
	}

	parts := make([]types.CompletedPart, 0, len(chunkPaths))
	for i, chunkPath := range chunkPaths {
		partNumber := int32(i + 1)
		source := url.PathEscape(container + "/" + chunkPath)

		copied, err := s.s3Client.UploadPartCopy(ctx, &s3.UploadPartCopyInput{
			Bucket:     aws.String(container),
			Key:        aws.String(path),
			UploadId:   uploadID,
			PartNumber: aws.Int32(partNumber),
			CopySource: aws.String(source),
		})
		if err != nil {
			abort()
			return "", fmt.Errorf("failed to copy chunk %d into merge: %w", i, err)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       copied.CopyPartResult.ETag,
			PartNumber: aws.Int32(partNumber),
		})
	}

	_, err = s.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(container),
		Key:             aws.String(path),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
		return "", fmt.Errorf("failed to complete merge: %w", err)
	}

	return s.objectURL(container, path), nil
}

func (s *S3Storage) objectURL(container, path string) string {
	endpoint := strings.TrimSuffix(s.config.S3Endpoint, "/")
	if endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", container, s.config.S3Region, path)
	}
	return fmt.Sprintf("%s/%s/%s", endpoint, container, path)
}

func (s *S3Storage) HealthCheck(ctx context.Context) error {
	_, err := s.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}

// AdminProvisioner implements service.ProvisionClient using a second client
// with elevated credentials. It is the first, server-side strategy of the
// bootstrap cascade.
type AdminProvisioner struct {
	s3Client *s3.Client
}

// NewAdminProvisioner returns nil when no admin credentials are configured;
// the cascade then skips straight to the client-side strategies.
func NewAdminProvisioner(cfg *config.Config) *AdminProvisioner {
	if cfg.S3AdminAccessKeyID == "" || cfg.S3AdminSecretAccessKey == "" {
		return nil
	}
	return &AdminProvisioner{s3Client: newClient(cfg, cfg.S3AdminAccessKeyID, cfg.S3AdminSecretAccessKey)}
}

func asAny[T error](err error, target *T) bool {
	return errors.As(err, target)
}

func (p *AdminProvisioner) ProvisionContainers(ctx context.Context, names []string) error {
	for _, name := range names {
		_, err := p.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
		if err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			if asAny(err, &owned) {
				continue
			}
			return fmt.Errorf("failed to provision bucket %s: %w", name, err)
		}
	}
	return nil
}

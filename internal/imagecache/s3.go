package imagecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// S3Config locates the bucket images are written to.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint string
	// Prefix is prepended to every object key.
	Prefix string
}

// S3 stores each image as one object named after the link id.
type S3 struct {
	client s3iface.S3API
	bucket string
	prefix string
	log    logrus.FieldLogger
}

var _ Cache = (*S3)(nil)

// NewS3 creates a session from the default credential chain and returns a
// cache writing to cfg.Bucket.
func NewS3(cfg S3Config, logger logrus.FieldLogger) (*S3, error) {
	awsCfg := aws.NewConfig()
	if cfg.Region != "" {
		awsCfg = awsCfg.WithRegion(cfg.Region)
	}
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return NewS3WithClient(s3.New(sess), cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3WithClient wraps an existing S3 client.
func NewS3WithClient(client s3iface.S3API, bucket, prefix string, logger logrus.FieldLogger) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: prefix,
		log:    logger.WithFields(logrus.Fields{"component": "image_cache", "bucket": bucket}),
	}
}

func (c *S3) key(id uuid.UUID) string {
	return path.Join(c.prefix, id.String())
}

// Get downloads the image for id.
func (c *S3) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	out, err := c.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(id)),
	})
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", id, err)
	}
	return data, nil
}

// Put uploads data for id, sniffing the content type.
func (c *S3) Put(ctx context.Context, id uuid.UUID, data []byte) error {
	_, err := c.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(c.key(id)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(http.DetectContentType(data)),
	})
	if err != nil {
		c.log.WithError(err).WithField("link_id", id).Error("Failed to upload image")
		return fmt.Errorf("failed to put image %s: %w", id, err)
	}
	return nil
}

// Delete removes the object for id. S3 treats missing keys as deleted.
func (c *S3) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := c.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.key(id)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

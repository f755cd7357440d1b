// Package assets stores binary uploads (signature images, accreditation
// documents) in S3-compatible object storage.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"realtyportal/internal/config"
	apperrors "realtyportal/pkg/errors"
)

// Uploader stores an object and returns a reference to it.
type Uploader interface {
	Upload(ctx context.Context, folder, fileName, contentType string, r io.Reader, size int64) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// MinioUploader writes objects to a single bucket.
type MinioUploader struct {
	client *minio.Client
	bucket string
	log    *logrus.Entry
}

// New returns an uploader for cfg. Missing write credentials produce an
// uploader that fails every call with a configuration error.
func New(cfg *config.AssetsConfig) (Uploader, error) {
	log := logrus.WithField("component", "assets")
	if !cfg.Configured() {
		log.Warn("Asset storage not configured, uploads are disabled")
		return Disabled{}, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create object storage client: %w", err)
	}
	return &MinioUploader{client: client, bucket: cfg.Bucket, log: log}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", u.bucket, err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", u.bucket, err)
	}
	u.log.WithField("bucket", u.bucket).Info("Created asset bucket")
	return nil
}

// Upload implements Uploader. The returned reference is "<bucket>/<key>".
func (u *MinioUploader) Upload(ctx context.Context, folder, fileName, contentType string, r io.Reader, size int64) (string, error) {
	key := ObjectKey(folder, fileName)
	info, err := u.client.PutObject(ctx, u.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", apperrors.Upstream("failed to upload asset", err)
	}
	u.log.WithFields(logrus.Fields{"key": info.Key, "size": info.Size}).Info("Asset uploaded")
	return u.bucket + "/" + info.Key, nil
}

// Open implements Uploader.
func (u *MinioUploader) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key := strings.TrimPrefix(ref, u.bucket+"/")
	obj, err := u.client.GetObject(ctx, u.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Upstream("failed to read asset", err)
	}
	return obj, nil
}

// Disabled is the uploader used when no storage credentials are configured.
type Disabled struct{}

var errNotConfigured = apperrors.New(apperrors.ErrCodeConfiguration, "asset storage is not configured")

// Upload implements Uploader.
func (Disabled) Upload(context.Context, string, string, string, io.Reader, int64) (string, error) {
	return "", errNotConfigured
}

// Open implements Uploader.
func (Disabled) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, errNotConfigured
}

// ObjectKey builds a unique object key under folder, keeping the extension of
// fileName.
func ObjectKey(folder, fileName string) string {
	ext := strings.ToLower(path.Ext(path.Base(fileName)))
	return path.Join(folder, uuid.NewString()+ext)
}

// DecodeDataURL decodes a base64 image, either bare or as a
// "data:<type>;base64,<payload>" URL, and returns its bytes and content type.
func DecodeDataURL(s string) ([]byte, string, error) {
	contentType := "image/png"
	payload := strings.TrimSpace(s)
	if strings.HasPrefix(payload, "data:") {
		comma := strings.Index(payload, ",")
		if comma < 0 {
			return nil, "", apperrors.Validation("malformed data URL")
		}
		meta := payload[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", apperrors.Validation("data URL must be base64 encoded")
		}
		if t := strings.TrimSuffix(meta, ";base64"); t != "" {
			contentType = t
		}
		payload = payload[comma+1:]
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", apperrors.Validation("signature must be an image")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", apperrors.Validation("signature image is not valid base64")
	}
	if len(data) == 0 {
		return nil, "", apperrors.Validation("signature image is empty")
	}
	return data, contentType, nil
}

// UploadBytes is a convenience wrapper around Upload for in-memory data.
func UploadBytes(ctx context.Context, u Uploader, folder, fileName, contentType string, data []byte) (string, error) {
	return u.Upload(ctx, folder, fileName, contentType, bytes.NewReader(data), int64(len(data)))
}

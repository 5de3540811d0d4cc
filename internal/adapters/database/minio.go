package database

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"

	"log/slog"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Attachment describes a stored upload.
type Attachment struct {
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Filename    string `json:"filename"`
}

// MinIOClient stores message attachments.
type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinIOClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(context.Background(), bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	slog.Info("Connected to MinIO", "endpoint", endpoint, "bucket", bucket)
	return &MinIOClient{
		client: client,
		bucket: bucket,
	}, nil
}

// UploadAttachment stores an uploaded file under a unique object name and
// returns its public URL and metadata.
func (m *MinIOClient) UploadAttachment(ctx context.Context, file *multipart.FileHeader) (*Attachment, error) {
	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	// Object names carry a UUID prefix so colliding filenames never
	// overwrite each other.
	objectName := fmt.Sprintf("attachments/%s%s", uuid.New().String(), path.Ext(file.Filename))
	contentType := file.Header.Get("Content-Type")

	_, err = m.client.PutObject(ctx, m.bucket, objectName, src, file.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &Attachment{
		URL:         fmt.Sprintf("http://%s/%s/%s", m.client.EndpointURL().Host, m.bucket, objectName),
		ContentType: contentType,
		Size:        file.Size,
		Filename:    file.Filename,
	}, nil
}

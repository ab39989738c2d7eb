package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strconv"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const markdownContentType = "text/markdown; charset=utf-8"

// MinioClient holds the MinIO client and bucket name.
type MinioClient struct {
	Client     *minio.Client
	BucketName string
}

// InitMinioClient builds a client from MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID,
// MINIO_SECRET_ACCESS_KEY, MINIO_BUCKET_NAME and MINIO_USE_SSL, creating the
// bucket when it does not exist yet.
func InitMinioClient(ctx context.Context) (*MinioClient, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKeyID := os.Getenv("MINIO_ACCESS_KEY_ID")
	secretAccessKey := os.Getenv("MINIO_SECRET_ACCESS_KEY")
	bucketName := os.Getenv("MINIO_BUCKET_NAME")
	useSSLStr := os.Getenv("MINIO_USE_SSL")

	if endpoint == "" || accessKeyID == "" || secretAccessKey == "" || bucketName == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY_ID, MINIO_SECRET_ACCESS_KEY, and MINIO_BUCKET_NAME must be set")
	}

	useSSL := false
	if useSSLStr != "" {
		v, err := strconv.ParseBool(useSSLStr)
		if err != nil {
			log.Printf("Warning: MINIO_USE_SSL environment variable is not a valid boolean ('%s'). Defaulting to false. Error: %v", useSSLStr, err)
		} else {
			useSSL = v
		}
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if MinIO bucket '%s' exists: %w", bucketName, err)
	}
	if !exists {
		log.Printf("MinIO bucket '%s' does not exist. Attempting to create it.", bucketName)
		if err := minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create MinIO bucket '%s': %w", bucketName, err)
		}
	}

	log.Printf("MinIO client initialized for bucket '%s'.", bucketName)
	return &MinioClient{Client: minioClient, BucketName: bucketName}, nil
}

// ReportObjectName is where the Markdown report of an experiment is stored for a run.
func ReportObjectName(runID, experiment string) string {
	return path.Join(runID, experiment+".md")
}

// UploadReport stores a rendered Markdown report and returns its object name.
func (mc *MinioClient) UploadReport(ctx context.Context, runID, experiment string, markdown []byte) (string, error) {
	if err := mc.check(); err != nil {
		return "", err
	}

	objectName := ReportObjectName(runID, experiment)
	uploadInfo, err := mc.Client.PutObject(ctx, mc.BucketName, objectName, bytes.NewReader(markdown), int64(len(markdown)), minio.PutObjectOptions{
		ContentType: markdownContentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to MinIO (bucket: %s, object: %s): %w", mc.BucketName, objectName, err)
	}

	log.Printf("Uploaded report '%s' of size %d to MinIO. ETag: %s", objectName, uploadInfo.Size, uploadInfo.ETag)
	return objectName, nil
}

// GetReport reads back a report stored by UploadReport.
func (mc *MinioClient) GetReport(ctx context.Context, runID, experiment string) ([]byte, error) {
	if err := mc.check(); err != nil {
		return nil, err
	}

	objectName := ReportObjectName(runID, experiment)
	object, err := mc.Client.GetObject(ctx, mc.BucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", objectName, mc.BucketName, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s' data: %w", objectName, err)
	}
	return data, nil
}

func (mc *MinioClient) check() error {
	if mc.Client == nil {
		return fmt.Errorf("MinIO client not initialized properly in MinioClient struct")
	}
	if mc.BucketName == "" {
		return fmt.Errorf("MinIO bucket name not configured in MinioClient struct")
	}
	return nil
}

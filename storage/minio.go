package storage

import (
	"context"
	"fmt"
	"time"

	"SyncFM/config"
	"SyncFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	mediaBucket string
)

// InitMinio 初始化 MinIO 客户端并确保媒体存储桶存在
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("已创建媒体存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	mediaBucket = cfg.MinioBucket
	logger.Info("MinIO 客户端初始化成功", logger.String("endpoint", cfg.MinioEndpoint))
	return nil
}

// GetMinioClient 获取 MinIO 客户端实例
func GetMinioClient() *minio.Client {
	return minioClient
}

// MediaObject 按对象路径读取媒体内容
func MediaObject(ctx context.Context, objectPath string) (*minio.Object, error) {
	if minioClient == nil {
		return nil, fmt.Errorf("MinIO client not initialized")
	}
	return minioClient.GetObject(ctx, mediaBucket, objectPath, minio.GetObjectOptions{})
}

// StatMediaObject 查询媒体对象元信息
func StatMediaObject(ctx context.Context, objectPath string) (minio.ObjectInfo, error) {
	if minioClient == nil {
		return minio.ObjectInfo{}, fmt.Errorf("MinIO client not initialized")
	}
	return minioClient.StatObject(ctx, mediaBucket, objectPath, minio.StatObjectOptions{})
}

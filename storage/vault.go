package storage

import (
	"context"
	"fmt"
	"time"

	"AuraFM/config"
	"AuraFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Vault 自托管媒体库客户端，为直接文件流生成预签名 URL
type Vault struct {
	client *minio.Client
	bucket string
}

// NewVault 初始化媒体库客户端；未配置 endpoint 时返回 nil
func NewVault(cfg *config.Config) (*Vault, error) {
	if cfg.VaultEndpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.VaultEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.VaultAccessKey, cfg.VaultSecretKey, ""),
		Secure: cfg.VaultUseSSL,
		Region: cfg.VaultRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建媒体库客户端失败: %w", err)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.VaultBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("存储桶不存在: %s", cfg.VaultBucket)
	}

	logger.Info("media vault connected",
		logger.String("endpoint", cfg.VaultEndpoint),
		logger.String("bucket", cfg.VaultBucket))
	return &Vault{client: client, bucket: cfg.VaultBucket}, nil
}

// PresignedStreamURL 为对象生成限时预签名访问 URL
func (v *Vault) PresignedStreamURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	u, err := v.client.PresignedGetObject(ctx, v.bucket, object, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return u.String(), nil
}

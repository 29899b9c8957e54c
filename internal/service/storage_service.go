package service

import (
	"bytes"
	"context"
	"errors"
	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/util"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/api/option"
)

// StorageProvider 定义通用存储接口
type StorageProvider interface {
	Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, filename string) error
	GetURL(filename string) string
}

// BlobUploader 打卡流程依赖的对象存储能力
type BlobUploader interface {
	Upload(ctx context.Context, content []byte, mimeType, path string) (string, error)
	Delete(ctx context.Context, path string) error
}

// LocalStorageProvider 本地存储实现
type LocalStorageProvider struct {
	Config *config.StorageConfig
}

func (p *LocalStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	dst := filepath.Join(p.Config.LocalPath, filepath.FromSlash(filename))
	dir := filepath.Dir(dst)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err = io.Copy(out, reader); err != nil {
		return "", err
	}

	return p.GetURL(filename), nil
}

func (p *LocalStorageProvider) Delete(ctx context.Context, filename string) error {
	dst := filepath.Join(p.Config.LocalPath, filepath.FromSlash(filename))
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *LocalStorageProvider) GetURL(filename string) string {
	return strings.TrimSuffix(p.Config.PublicBaseURL, "/") + "/uploads/" + filename
}

// MinioStorageProvider MinIO存储实现
type MinioStorageProvider struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioStorageProvider(cfg *config.StorageConfig) (*MinioStorageProvider, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStorageProvider{Config: cfg, Client: client}, nil
}

func (p *MinioStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	_, err := p.Client.PutObject(ctx, p.Config.MinioBucket, filename, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *MinioStorageProvider) Delete(ctx context.Context, filename string) error {
	return p.Client.RemoveObject(ctx, p.Config.MinioBucket, filename, minio.RemoveObjectOptions{})
}

func (p *MinioStorageProvider) GetURL(filename string) string {
	return strings.TrimSuffix(p.Config.PublicBaseURL, "/") + "/" + p.Config.MinioBucket + "/" + filename
}

// OSSStorageProvider 阿里云OSS存储实现
type OSSStorageProvider struct {
	Config *config.StorageConfig
	Client *oss.Client
}

func NewOSSStorageProvider(cfg *config.StorageConfig) (*OSSStorageProvider, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	return &OSSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *OSSStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return "", err
	}

	err = bucket.PutObject(filename, reader, oss.ContentType(contentType), oss.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *OSSStorageProvider) Delete(ctx context.Context, filename string) error {
	bucket, err := p.Client.Bucket(p.Config.OSSBucket)
	if err != nil {
		return err
	}
	return bucket.DeleteObject(filename, oss.WithContext(ctx))
}

func (p *OSSStorageProvider) GetURL(filename string) string {
	return fmt.Sprintf("https://%s.%s/%s", p.Config.OSSBucket, p.Config.OSSEndpoint, filename)
}

// GCSStorageProvider Google Cloud Storage 实现
type GCSStorageProvider struct {
	Config *config.StorageConfig
	Client *storage.Client
}

func NewGCSStorageProvider(ctx context.Context, cfg *config.StorageConfig) (*GCSStorageProvider, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &GCSStorageProvider{Config: cfg, Client: client}, nil
}

func (p *GCSStorageProvider) Upload(ctx context.Context, filename string, reader io.Reader, size int64, contentType string) (string, error) {
	obj := p.Client.Bucket(p.Config.GCSBucket).Object(filename)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if p.Config.GCSMakePublic {
		w.PredefinedACL = "publicRead"
	}
	if _, err := io.Copy(w, reader); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return p.GetURL(filename), nil
}

func (p *GCSStorageProvider) Delete(ctx context.Context, filename string) error {
	err := p.Client.Bucket(p.Config.GCSBucket).Object(filename).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (p *GCSStorageProvider) GetURL(filename string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", p.Config.GCSBucket, filename)
}

// StorageService 存储服务，对外暴露 BlobUploader
type StorageService struct {
	Provider StorageProvider
}

func NewStorageService(ctx context.Context, cfg *config.Config) (*StorageService, error) {
	var (
		provider StorageProvider
		err      error
	)
	switch cfg.Storage.Type {
	case util.StorageMinio:
		provider, err = NewMinioStorageProvider(&cfg.Storage)
	case util.StorageOSS:
		provider, err = NewOSSStorageProvider(&cfg.Storage)
	case util.StorageGCS:
		provider, err = NewGCSStorageProvider(ctx, &cfg.Storage)
	case util.StorageLocal, "":
		provider = &LocalStorageProvider{Config: &cfg.Storage}
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.Storage.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s storage: %w", cfg.Storage.Type, err)
	}

	return &StorageService{Provider: provider}, nil
}

// Upload 上传字节内容并返回公开访问地址
func (s *StorageService) Upload(ctx context.Context, content []byte, mimeType, path string) (string, error) {
	url, err := s.Provider.Upload(ctx, path, bytes.NewReader(content), int64(len(content)), mimeType)
	if err != nil {
		return "", util.NewStorageFailure("Error uploading file", err)
	}
	return url, nil
}

func (s *StorageService) Delete(ctx context.Context, path string) error {
	if err := s.Provider.Delete(ctx, path); err != nil {
		return util.NewStorageFailure("Error deleting file", err)
	}
	return nil
}

func (s *StorageService) GetURL(path string) string {
	return s.Provider.GetURL(path)
}

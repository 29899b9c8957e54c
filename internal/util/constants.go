package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
	StorageGCS   = "gcs"
)

// 文件上传相关常量
const (
	MimeImage = "image/"

	MaxPhotosPerCheckIn = 3
	MaxPhotoBytes       = 5 << 20
)

const IdempotencyKeyHeader = "Idempotency-Key"

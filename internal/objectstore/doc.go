// Package objectstore архивирует отчёты run в S3-совместимое хранилище
// (MinIO, S3) через minio-go.
package objectstore

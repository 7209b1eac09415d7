package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/shaiso/stagehand/internal/domain"
)

// Putter загружает объекты. Реализуется *minio.Client.
type Putter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive — получатель отчётов, выгружающий их JSON в бакет.
//
// Ключ объекта: <prefix><pipeline>/<YYYY>/<MM>/<DD>/<run_id>.json
// по времени начала run в UTC.
type Archive struct {
	client Putter
	bucket string
	prefix string
}

// NewArchive подключается к хранилищу и создаёт бакет, если его нет.
func NewArchive(ctx context.Context, cfg Config) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}

	return NewArchiveWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewArchiveWithClient создаёт Archive поверх готового клиента.
func NewArchiveWithClient(client Putter, bucket, prefix string) *Archive {
	if client == nil {
		panic("objectstore: nil client")
	}
	return &Archive{client: client, bucket: bucket, prefix: prefix}
}

// Name возвращает имя получателя.
func (a *Archive) Name() string {
	return "objectstore"
}

// Notify выгружает отчёт.
func (a *Archive) Notify(ctx context.Context, r *domain.RunReport) error {
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	key := a.ObjectKey(r)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType: "application/json",
			UserMetadata: map[string]string{
				"run-id": r.RunID.String(),
				"status": r.Status.String(),
			},
		})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", a.bucket, key, err)
	}
	return nil
}

// ObjectKey возвращает ключ объекта для отчёта.
func (a *Archive) ObjectKey(r *domain.RunReport) string {
	pipeline := r.Pipeline
	if pipeline == "" {
		pipeline = "unnamed"
	}
	day := r.StartedAt.UTC().Format("2006/01/02")
	return a.prefix + path.Join(pipeline, day, r.RunID.String()+".json")
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, region string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

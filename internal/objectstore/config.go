package objectstore

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig — конфигурация хранилища неполная.
var ErrInvalidConfig = errors.New("invalid object store config")

// Config — параметры S3-совместимого хранилища.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool

	// Prefix — префикс ключей объектов, например "reports/".
	Prefix string
}

// Enabled возвращает true, если хранилище настроено.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Validate проверяет обязательные поля.
func (c Config) Validate() error {
	var missing []string
	if c.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if c.AccessKey == "" {
		missing = append(missing, "access key")
	}
	if c.SecretKey == "" {
		missing = append(missing, "secret key")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

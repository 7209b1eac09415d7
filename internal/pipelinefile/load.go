package pipelinefile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/stagehand/internal/domain"
)

// Format — формат файла.
type Format string

const (
	FormatYAML  Format = "yaml"
	FormatJSONC Format = "jsonc"
)

var (
	// ErrUnknownFormat — расширение файла не поддерживается.
	ErrUnknownFormat = errors.New("unknown file format")

	// ErrDecode — файл не разбирается.
	ErrDecode = errors.New("decode failed")
)

// FormatFromPath определяет формат по расширению.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSONC, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// NameFromPath возвращает имя файла без каталога и расширения.
// "pipelines/release.yaml" → "release".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse разбирает описание pipeline.
func Parse(data []byte, format Format) (*domain.PipelineSource, error) {
	var src domain.PipelineSource
	if err := decode(data, format, &src); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}
	return &src, nil
}

// ReadFile читает pipeline с диска. Если имя не задано в файле,
// используется имя файла.
func ReadFile(path string) (*domain.PipelineSource, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	src, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if src.Name == "" {
		src.Name = NameFromPath(path)
	}

	return src, nil
}

// scheduleFile — корневой объект файла расписаний.
type scheduleFile struct {
	Schedules []domain.Schedule `json:"schedules" yaml:"schedules"`
}

// ParseSchedules разбирает файл расписаний.
//
//	schedules:
//	  - name: nightly
//	    pipeline: pipelines/release.yaml
//	    cron: "0 3 * * *"
//	    enabled: true
func ParseSchedules(data []byte, format Format) ([]domain.Schedule, error) {
	var file scheduleFile
	if err := decode(data, format, &file); err != nil {
		return nil, fmt.Errorf("parsing schedules: %w", err)
	}

	seen := make(map[string]bool, len(file.Schedules))
	for i, s := range file.Schedules {
		if s.Name == "" {
			return nil, fmt.Errorf("%w: schedule #%d has empty name", ErrDecode, i)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("%w: duplicate schedule name %q", ErrDecode, s.Name)
		}
		seen[s.Name] = true
		if s.Pipeline == "" {
			return nil, fmt.Errorf("%w: schedule %s has no pipeline", ErrDecode, s.Name)
		}
	}

	return file.Schedules, nil
}

// ReadSchedules читает файл расписаний. Относительные пути pipeline
// разрешаются от каталога файла и становятся абсолютными.
func ReadSchedules(path string) ([]domain.Schedule, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	schedules, err := ParseSchedules(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	for i := range schedules {
		if !filepath.IsAbs(schedules[i].Pipeline) {
			schedules[i].Pipeline = filepath.Join(dir, schedules[i].Pipeline)
		}
	}

	return schedules, nil
}

// credentialFile — корневой объект файла дескрипторов секретов.
type credentialFile struct {
	Credentials map[string]string `json:"credentials" yaml:"credentials"`
}

// ParseCredentials разбирает файл дескрипторов секретов.
// Файл хранит ссылки на секреты, а не сами значения.
//
//	credentials:
//	  registry: vault://ci/registry
func ParseCredentials(data []byte, format Format) (map[string]string, error) {
	var file credentialFile
	if err := decode(data, format, &file); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	creds := make(map[string]string, len(file.Credentials))
	for name, ref := range file.Credentials {
		if name == "" || ref == "" {
			return nil, fmt.Errorf("%w: credential %q has empty name or reference", ErrDecode, name)
		}
		creds[name] = ref
	}
	return creds, nil
}

// ReadCredentials читает файл дескрипторов секретов.
func ReadCredentials(path string) (map[string]string, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	creds, err := ParseCredentials(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return creds, nil
}

// decode разбирает data в v со строгой проверкой полей.
func decode(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return nil

	case FormatJSONC:
		stripped := jsonc.ToJSON(data)
		if len(bytes.TrimSpace(stripped)) == 0 {
			return nil
		}
		dec := json.NewDecoder(bytes.NewReader(stripped))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

package api

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/pipelinefile"
)

// maxPipelineBody — ограничение на размер pipeline в запросе.
const maxPipelineBody = 1 << 20

// ValidatePipeline компилирует pipeline из тела запроса.
// POST /api/v1/pipelines/validate?format=yaml|jsonc
//
// Без format формат определяется по Content-Type (JSON → jsonc),
// по умолчанию YAML. Ошибка компиляции — 422 с valid=false.
func (h *Handler) ValidatePipeline(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPipelineBody))
	if err != nil {
		BadRequest(w, "pipeline body is too large or unreadable")
		return
	}

	format, err := requestFormat(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	src, err := pipelinefile.Parse(data, format)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	p, err := engine.Compile(src, h.catalog)
	if err != nil {
		issue := ValidationIssue{Message: err.Error()}
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			issue = ValidationIssue{StageID: verr.StageID, Field: verr.Field, Message: verr.Message}
		}
		JSON(w, http.StatusUnprocessableEntity, DataResponse{Data: ValidationResponse{
			Valid:  false,
			Name:   src.Name,
			Errors: []ValidationIssue{issue},
		}})
		return
	}

	Success(w, ValidationResponse{
		Valid:       true,
		Name:        p.Name,
		Fingerprint: p.Fingerprint(),
		Stages:      StagesFromPipeline(p),
	})
}

// ListSteps возвращает зарегистрированные шаги.
// GET /api/v1/steps
func (h *Handler) ListSteps(w http.ResponseWriter, r *http.Request) {
	all := h.catalog.Steps()
	result := make([]StepResponse, len(all))
	for i, s := range all {
		result[i] = StepFromDomain(s)
	}
	List(w, result, len(result))
}

// requestFormat определяет формат pipeline в запросе.
func requestFormat(r *http.Request) (pipelinefile.Format, error) {
	switch f := r.URL.Query().Get("format"); f {
	case "":
	case string(pipelinefile.FormatYAML), "yml":
		return pipelinefile.FormatYAML, nil
	case string(pipelinefile.FormatJSONC), "json":
		return pipelinefile.FormatJSONC, nil
	default:
		return "", errors.New("unsupported format " + f)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return pipelinefile.FormatJSONC, nil
	}
	return pipelinefile.FormatYAML, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/minio/minio-go/v7"
	openai "github.com/sashabaranov/go-openai"

	"github.com/castlab/podcast-pipeline/internal/podcast/models"
)

var (
	ErrStageTimeout   = errors.New("stage timed out")
	ErrCancelled      = errors.New("pipeline cancelled")
	ErrAlreadyRunning = errors.New("pipeline already running for podcast")
)

// StageError ties a pipeline failure to the stage it happened in. The wrapped
// error is what ends up in the podcast's error detail.
type StageError struct {
	Stage models.Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// IsTransient reports whether an external failure is worth retrying.
// Timeouts, rate limits and 5xx responses are transient; bad input, auth
// problems and exhausted quota are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrStageTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			// Exhausted quota also comes back as 429, but retrying won't help.
			code, _ := apiErr.Code.(string)
			return code != "insufficient_quota"
		}
		return apiErr.HTTPStatusCode == http.StatusRequestTimeout ||
			apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	var storageErr minio.ErrorResponse
	if errors.As(err, &storageErr) {
		return storageErr.StatusCode == http.StatusTooManyRequests ||
			storageErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

package crophealth

import (
	"context"
	"errors"
	"fmt"

	"github.com/agrisense/cropdoc/internal/ingest"
	"github.com/agrisense/cropdoc/internal/verify"
)

// Errors returned by Analyze. Callers distinguish them with errors.Is to
// pick the message shown to the user.
var (
	// ErrImageDecode means the upload is not a readable image.
	ErrImageDecode = ingest.ErrDecode
	// ErrModelUnavailable means the plant verification model could not be
	// loaded. Analysis does not proceed without it.
	ErrModelUnavailable = verify.ErrModelUnavailable
	// ErrNotAPlant means the verifier found no plant in the image.
	ErrNotAPlant = errors.New("image does not show a plant")
	// ErrAnalysisFailed wraps every other failure.
	ErrAnalysisFailed = errors.New("analysis failed")
)

// Kind names the error class of err for logs and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrImageDecode):
		return "image_decode"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, ErrNotAPlant):
		return "not_a_plant"
	default:
		return "analysis_failed"
	}
}

// classifyErr keeps the caller-facing kinds intact and folds everything
// else into ErrAnalysisFailed.
func classifyErr(stage string, err error) error {
	if errors.Is(err, ErrImageDecode) || errors.Is(err, ErrModelUnavailable) || errors.Is(err, ErrNotAPlant) ||
		errors.Is(err, ErrAnalysisFailed) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s interrupted: %w", ErrAnalysisFailed, stage, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrAnalysisFailed, stage, err)
}

package core

import (
	"errors"
	"fmt"
)

// Error taxonomy for the pipeline. Only ErrSourceUnavailable and
// ErrExtractionFailed abort a request; the rest are recovered locally and
// surface, at worst, as an error-tagged ClaimResult.
var (
	ErrSourceUnavailable   = errors.New("source text unavailable")
	ErrExtractionFailed    = errors.New("claim extraction failed")
	ErrFetchFailed         = errors.New("article body unavailable")
	ErrJudgmentFailed      = errors.New("judgment call failed")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProcessorError      = errors.New("claim processor failed")
)

// IsRequestError reports whether err aborts the whole request.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) || errors.Is(err, ErrExtractionFailed)
}

// ErrorLabel maps err onto its taxonomy name. Unclassified errors fall back
// to ProcessorError.
func ErrorLabel(err error) string {
	switch {
	case errors.Is(err, ErrSourceUnavailable):
		return "SourceUnavailable"
	case errors.Is(err, ErrExtractionFailed):
		return "ExtractionFailed"
	case errors.Is(err, ErrFetchFailed):
		return "FetchFailed"
	case errors.Is(err, ErrJudgmentFailed):
		return "JudgmentFailed"
	case errors.Is(err, ErrProviderUnavailable):
		return "ProviderUnavailable"
	default:
		return "ProcessorError"
	}
}

// ErrorDetail renders err as "<Type>: <message>" for the per-claim error
// field.
func ErrorDetail(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrorLabel(err), err.Error())
}

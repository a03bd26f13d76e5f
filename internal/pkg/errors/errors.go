package errors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalid              = errors.New("invalid")
	ErrTooMany              = errors.New("too many requests")
	ErrInternal             = errors.New("internal")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrSubjectLimitExceeded = errors.New("subject limit exceeded")
	ErrIndexUnavailable     = errors.New("index unavailable")
	ErrGeneration           = errors.New("generation failed")
	ErrTranscription        = errors.New("transcription failed")
	ErrSynthesis            = errors.New("speech synthesis failed")
	ErrInsufficientContent  = errors.New("insufficient content")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrUnsupportedFormat, "unsupported_format"},
	{ErrSubjectLimitExceeded, "subject_limit_exceeded"},
	{ErrIndexUnavailable, "index_unavailable"},
	{ErrGeneration, "generation_error"},
	{ErrTranscription, "transcription_error"},
	{ErrSynthesis, "synthesis_error"},
	{ErrInsufficientContent, "insufficient_content"},
	{ErrNotFound, "not_found"},
	{ErrInvalid, "invalid"},
	{ErrTooMany, "too_many_requests"},
}

// Kind returns the stable taxonomy name of err, "internal" when it is not classified.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, item := range kinds {
		if errors.Is(err, item.err) {
			return item.kind
		}
	}
	return "internal"
}

// IsUserCorrectable reports whether the caller can fix the request and retry.
func IsUserCorrectable(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrSubjectLimitExceeded) ||
		errors.Is(err, ErrInsufficientContent) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrNotFound)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

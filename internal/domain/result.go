package domain

import "time"

// ResultKind classifies how a turn was answered.
type ResultKind string

const (
	KindTextResponse  ResultKind = "text_response"
	KindImageAnalysis ResultKind = "image_analysis"
)

// Error kinds carried in result metadata.
const (
	ErrKindImageDownload   = "ImageDownloadError"
	ErrKindModelInvocation = "ModelInvocationError"
	ErrKindCatalog         = "CatalogUnavailable"
	ErrKindInternal        = "InternalError"
)

// errorReplyPrefix is prepended to every failure before it reaches the user.
const errorReplyPrefix = "Sorry, I encountered an error: "

// ResultMetadata records when and how a turn was processed.
type ResultMetadata struct {
	ProcessedAt time.Time
	Kind        ResultKind
	ErrorKind   string
	Model       string
	LatencyMs   int64
}

// OperationResult is the single terminal shape every turn produces.
// Exactly one of Response/Error is set; it is constructed once and never
// mutated afterwards.
type OperationResult struct {
	Success  bool
	Response string
	Error    string
	Metadata ResultMetadata
}

// SuccessResult builds a successful result for the given kind.
func SuccessResult(kind ResultKind, response, model string) OperationResult {
	return OperationResult{
		Success:  true,
		Response: response,
		Metadata: ResultMetadata{
			ProcessedAt: time.Now().UTC(),
			Kind:        kind,
			Model:       model,
		},
	}
}

// FailureResult builds a failed result with the given error kind and
// human-readable message.
func FailureResult(errorKind, message, model string) OperationResult {
	return OperationResult{
		Success: false,
		Error:   message,
		Metadata: ResultMetadata{
			ProcessedAt: time.Now().UTC(),
			ErrorKind:   errorKind,
			Model:       model,
		},
	}
}

// ReplyText renders the result as the single sentence handed back to the
// transport. Failures are prefixed so the user knows something went wrong;
// internals (stack traces, error kinds) never leak here.
func (r OperationResult) ReplyText() string {
	if r.Success {
		return r.Response
	}
	return errorReplyPrefix + r.Error
}

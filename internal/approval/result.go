package approval

import (
	"errors"

	"github.com/starford/tenantdesk/internal/storage"
)

// Result is the outcome of a propagation. Operations never return a Go
// error; failures are reported here.
type Result struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	CopiedFields []string     `json:"copiedFields"`
	Error        *ErrorDetail `json:"error,omitempty"`

	// Err is the underlying error, when there is one.
	Err error `json:"-"`
}

// ErrorDetail is the serializable form of Result.Err.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func skipped(message string) Result {
	return Result{Message: message, CopiedFields: []string{}}
}

func failed(message string, err error) Result {
	return Result{
		Message:      message,
		CopiedFields: []string{},
		Error:        detailOf(err),
		Err:          err,
	}
}

func detailOf(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	var rpcErr *storage.RPCError
	if errors.As(err, &rpcErr) {
		return &ErrorDetail{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Details: rpcErr.Details,
			Hint:    rpcErr.Hint,
		}
	}
	return &ErrorDetail{Message: err.Error()}
}

// errorMessage is the message of err as the data layer reported it, or
// "Unknown error".
func errorMessage(err error) string {
	var rpcErr *storage.RPCError
	if errors.As(err, &rpcErr) && rpcErr.Message != "" {
		return rpcErr.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return "Unknown error"
}

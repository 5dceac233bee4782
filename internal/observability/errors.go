package observability

import (
	"errors"
	"fmt"
)

// AggregateErrors joins the non-nil errors of a multi-step operation. When any
// remain it logs one entry listing them and returns the joined error.
func AggregateErrors(logger Logger, operation string, errs []error, fields ...Field) error {
	joined := errors.Join(errs...)
	if joined == nil {
		return nil
	}
	if logger == nil {
		logger = Log()
	}
	var messages []string
	for _, err := range errs {
		if err != nil {
			messages = append(messages, err.Error())
		}
	}
	logger.Error(operation+" failed", append(fields,
		Field{Key: "error_count", Value: len(messages)},
		Field{Key: "errors", Value: messages},
	)...)
	return fmt.Errorf("%s: %w", operation, joined)
}

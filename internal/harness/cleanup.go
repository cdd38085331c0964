package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/sdsverify/internal/sds"
)

// Cleanup deletes the stream, then the type. The type deletion is attempted
// even if the stream deletion failed. Each failure is logged and returned
// as a CLEANUP *StageError, a panicking deletion included; nothing is
// retried.
func Cleanup(ctx context.Context, client sds.Client, namespaceID, typeID, streamID string, logger *slog.Logger) []error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var errs []error

	if err := attempt(func() error { return client.DeleteStream(ctx, namespaceID, streamID) }); err != nil {
		logger.Warn("cleanup failed", "resource", "stream", "id", streamID, "error", err)
		errs = append(errs, &StageError{Code: CodeCleanup, Stage: StageCleaningUp, Resource: "stream", Err: err})
	}
	if err := attempt(func() error { return client.DeleteType(ctx, namespaceID, typeID) }); err != nil {
		logger.Warn("cleanup failed", "resource", "type", "id", typeID, "error", err)
		errs = append(errs, &StageError{Code: CodeCleanup, Stage: StageCleaningUp, Resource: "type", Err: err})
	}
	return errs
}

// attempt runs one deletion, converting a panic into an error.
func attempt(del func() error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return del()
}

package errorutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// HandleError is a utility function for handling errors with logging
func HandleError(log zerolog.Logger, err error, msg string) {
	if err != nil {
		log.Error().Err(err).Msg(msg)
	}
}

// HandleContextError logs cancelMsg when err stems from ctx being
// cancelled or timing out, and errorMsg otherwise.
func HandleContextError(log zerolog.Logger, ctx context.Context, err error, cancelMsg, errorMsg string) {
	if err == nil {
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.Warn().Err(ctx.Err()).Msg(cancelMsg)
		return
	}
	log.Error().Err(err).Msg(errorMsg)
}

// WrapError wraps an error with additional context
func WrapError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

package bridge

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// pollAndClearError reads the engine's error record. It returns nil when the
// code is zero; otherwise it reads the message, clears the record so the same
// error is not raised by a later call, and returns it.
func (b *Bridge) pollAndClearError(ctx context.Context) (*NativeError, error) {
	code, err := b.native.ErrorCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine error code: %w", err)
	}
	if code == ErrCodeNone {
		return nil, nil
	}

	rec := &NativeError{Code: code, Origin: b.native.Name()}

	// The message must be read before clearing; clearing may free it.
	msgAddr, err := b.native.ErrorMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine error message: %w", err)
	}
	if msgAddr != 0 {
		msg, err := readCString(b.native.Memory(), msgAddr)
		if err != nil {
			b.logger.Warn("Unreadable engine error message", zap.Uint32("addr", uint32(msgAddr)), zap.Error(err))
		}
		rec.Message = msg
	}

	if err := b.native.ClearError(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear engine error: %w", err)
	}
	return rec, nil
}

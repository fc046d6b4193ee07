package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Bridge is the per-engine context object. It owns the scratch slot and
// serialises nothing: concurrent or re-entrant calls fail with ErrBusy.
type Bridge struct {
	native  Native
	heap    *Allocator
	scratch ScratchSlot
	logger  *zap.Logger

	inUse  atomic.Bool
	gen    atomic.Uint64
	closed bool
}

// New creates a bridge over native and allocates its scratch slot.
func New(ctx context.Context, native Native, logger *zap.Logger) (*Bridge, error) {
	heap := NewAllocator(native)
	addr, err := heap.Alloc(ctx, scratchSlotSize)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate scratch slot: %w", err)
	}

	b := &Bridge{
		native:  native,
		heap:    heap,
		scratch: ScratchSlot{addr: addr},
		logger:  logger.With(zap.String("component", "bridge"), zap.String("engine", native.Name())),
	}

	b.logger.Debug("Bridge initialized", zap.Uint32("scratch_addr", uint32(addr)))
	return b, nil
}

// Native returns the engine behind the bridge.
func (b *Bridge) Native() Native {
	return b.native
}

// Heap returns the allocator for the engine's heap.
func (b *Bridge) Heap() *Allocator {
	return b.heap
}

// Parse converts UTF-8 markdown to the requested format and returns a view
// of the engine's output buffer. The view is invalidated by the next call on
// this Bridge. A nil view with a nil error means the engine produced no output.
func (b *Bridge) Parse(ctx context.Context, source []byte, opts Options) (*OutputView, error) {
	req, err := opts.resolve(b.native)
	if err != nil {
		return nil, err
	}

	if err := b.acquire(); err != nil {
		return nil, err
	}
	defer b.release()

	view, callErr := b.invokeParse(ctx, source, req, opts)

	rec, pollErr := b.pollAndClearError(ctx)
	if rec != nil {
		b.logger.Debug("Engine reported error",
			zap.Uint32("code", rec.Code),
			zap.String("message", rec.Message),
		)
	}

	switch {
	case callErr != nil && rec != nil:
		return nil, errors.Join(callErr, rec)
	case callErr != nil:
		return nil, callErr
	case rec != nil:
		return nil, rec
	case pollErr != nil:
		return nil, pollErr
	}
	return view, nil
}

// ParseString is Parse for text input and output. The result is a copy and
// stays valid across calls.
func (b *Bridge) ParseString(ctx context.Context, source string, opts Options) (string, error) {
	view, err := b.Parse(ctx, encodeText(source), opts)
	if err != nil {
		return "", err
	}
	return view.String(), nil
}

// invokeParse runs one parseUTF8 call with the transfer buffer, output
// capture and optional trampoline in place.
func (b *Bridge) invokeParse(ctx context.Context, source []byte, req ParseRequest, opts Options) (*OutputView, error) {
	var hook *TrampolineHandle
	if opts.OnCodeBlock != nil {
		h, err := b.installTrampoline(opts.OnCodeBlock, opts.OnCallbackError)
		if err != nil {
			return nil, err
		}
		hook = h
		defer b.uninstallTrampoline(hook)
	}

	return withTransferBuffer(ctx, b.heap, b.native.Memory(), source, func(addr Address, n uint32) (*OutputView, error) {
		return b.withOutputCapture(ctx, func(out Address) (uint32, error) {
			req.Input = addr
			req.InputLen = n
			req.Out = out
			req.Callback = hook.Index()
			return b.native.ParseUTF8(ctx, &req)
		})
	})
}

// Version returns the engine version string.
func (b *Bridge) Version(ctx context.Context) (string, error) {
	if err := b.acquire(); err != nil {
		return "", err
	}
	defer b.release()

	v, err := b.readUTF8Out(ctx, func(out Address) (uint32, error) {
		return b.native.Version(ctx, out)
	})
	if err != nil {
		return "", err
	}
	if rec, err := b.pollAndClearError(ctx); err != nil {
		return "", err
	} else if rec != nil {
		return "", rec
	}
	return v, nil
}

// Close frees the scratch slot. Later calls fail with ErrClosed.
func (b *Bridge) Close(ctx context.Context) error {
	if !b.inUse.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer b.inUse.Store(false)

	if b.closed {
		return nil
	}
	b.closed = true
	b.gen.Add(1)
	return b.heap.Free(ctx, b.scratch.addr)
}

// acquire marks the bridge busy and starts a new output generation.
func (b *Bridge) acquire() error {
	if !b.inUse.CompareAndSwap(false, true) {
		return ErrBusy
	}
	if b.closed {
		b.inUse.Store(false)
		return ErrClosed
	}
	b.gen.Add(1)
	return nil
}

func (b *Bridge) release() {
	b.inUse.Store(false)
}

func (b *Bridge) generation() uint64 {
	return b.gen.Load()
}

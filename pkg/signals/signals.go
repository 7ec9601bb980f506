// Package signals cancels a context on OS signals with proper cleanup.
package signals

import (
	"context"
	"os"
	"os/signal"
	"sync"
)

// signalContext cancels on the first signal received.
type signalContext struct {
	context.Context

	cancel   context.CancelFunc
	stopOnce sync.Once
	stopCh   chan struct{}
	ch       chan os.Signal

	mu       sync.Mutex
	received os.Signal
}

func (sc *signalContext) stop() {
	sc.stopOnce.Do(func() {
		signal.Stop(sc.ch)
		sc.cancel()
		close(sc.stopCh)
	})
}

// Signal returns the signal that cancelled ctx, or nil.
func Signal(ctx context.Context) os.Signal {
	sc, ok := ctx.(*signalContext)
	if !ok {
		return nil
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.received
}

// WithSignal returns a context cancelled when any of sigs arrives. onSignal,
// if non-nil, is called with the signal before cancellation. The returned
// stop function must be called to release the signal handler.
//
//	ctx, stop := signals.WithSignal(ctx, nil, os.Interrupt, syscall.SIGTERM)
//	defer stop()
func WithSignal(parent context.Context, onSignal func(os.Signal), sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sc := &signalContext{
		Context: ctx,
		cancel:  cancel,
		stopCh:  make(chan struct{}),
		ch:      make(chan os.Signal, 1),
	}
	signal.Notify(sc.ch, sigs...)

	go func() {
		select {
		case sig := <-sc.ch:
			sc.mu.Lock()
			sc.received = sig
			sc.mu.Unlock()
			if onSignal != nil {
				onSignal(sig)
			}
			cancel()
		case <-sc.stopCh:
		case <-ctx.Done():
		}
	}()

	return sc, sc.stop
}

package notify

import (
	"context"
	"log"
)

// Notifier is the single outbound capability this subsystem calls. The chat
// transport supplies the real implementation; the destination is an opaque
// address in its own scheme.
type Notifier interface {
	SendText(ctx context.Context, destination, text string) error
}

// LogNotifier is the standalone default: notifications land in the process
// log instead of a chat channel.
type LogNotifier struct{}

func (LogNotifier) SendText(_ context.Context, destination, text string) error {
	log.Printf("[Notify] to=%s %s", destination, text)
	return nil
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, destination, text string) error

func (f Func) SendText(ctx context.Context, destination, text string) error {
	return f(ctx, destination, text)
}

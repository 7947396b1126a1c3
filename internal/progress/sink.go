package progress

import "context"

// Sink consumes batches of events. Implementations must honor ctx deadlines
// and tolerate concurrent calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies this, so emitters stay
// agnostic about buffering and persistence. A nil Emitter discards events.
type Emitter interface {
	Emit(evt Event)
}

/*
Package bridge lets blocking callers drive asynchronous, multi-step work.

A Backend owns a dispatcher goroutine and the goroutines that run submitted
work. Callers never touch the work directly; they hold either a Future
(submit-and-wait) or a Stream (submit-and-stream):

	backend := bridge.New(bridge.WithConcurrency(8))
	defer backend.Close(ctx)

	threads, err := bridge.Submit(backend, engine.Threads).Wait()

	stream := backend.Stream(func(ctx context.Context, emit func(domain.Message)) error {
		return engine.RunTurn(ctx, threadID, text, emit)
	})
	for {
		ev, err := stream.Next(ctx)
		...
		if ev.Terminal() {
			break
		}
	}

A stream delivers events in exactly the order the producer emitted them,
followed by one done event, or by an error event in its place.
*/
package bridge

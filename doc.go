/*
Package itinera runs tool-using conversations between a user and a model.

A turn starts with a user message and alternates between asking the model and running the
tools it requests, until the model answers without tool calls. Every message is appended to
a checkpoint store before it is handed to the caller, so any thread can be resumed from its
id after a crash or restart.

# Usage

	eng, err := itinera.New(model,
		itinera.WithStore(store),
		itinera.WithTools(reg),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer eng.Close(context.Background())

	stream := eng.Stream(itinera.NewThreadID(), "What is 2 + 3?")
	for {
		ev, err := stream.Next(ctx)
		if err != nil || ev.Terminal() {
			break
		}
		fmt.Println(ev.Message.Content)
	}

Turns on the same thread are serialized. Turns on different threads run concurrently on the
engine's bridge.Backend.
*/
package itinera

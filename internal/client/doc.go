// Package client is the replica side of the canvas protocol.
//
// Connect logs in and returns a Replica holding a local copy of the board.
// A single receive goroutine applies every TILE_CHANGED to that copy and then
// notifies subscribed listeners, in the order the server sent them:
//
//	r, err := client.Connect(ctx, "localhost:8000", "alice")
//	if errors.Is(err, client.ErrLoginRejected) {
//		// name in use
//	}
//	defer r.Close()
//
//	unsubscribe := r.Subscribe(client.ListenerFuncs{
//		OnChange: func(c board.Cell) { fmt.Println(r.View()) },
//	})
//	defer unsubscribe()
//
//	_ = r.Submit(1, 1, palette.Red)
//
// Subscribe only sees changes that arrive after it returns. A listener that
// must see every change after the initial board is passed to Connect with
// WithListener instead.
//
// Submit is fire-and-forget. An accepted change comes back as a notification
// (the server echoes to the sender); a rejected one produces nothing.
//
// The replica terminates on ERROR from the server, on any I/O or protocol
// failure, or on Close. Listeners get exactly one Terminated call and Done is
// closed afterwards. Nothing is retried; reconnecting is up to the caller.
package client

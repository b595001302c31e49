// Package event defines the progress updates a horizon run emits and the two
// ways of observing them.
//
// A [Stream] is the per-run, ordered queue the caller pulls from. The engine
// writes to it through an [Emitter]; every send blocks until the consumer
// reads or the consumer's context ends. The last update is always of type
// [TypeCompleted] or [TypeFailed], carries the run's Result, and is followed
// by the channel closing.
//
// A [Bus] is an optional synchronous fan-out for observers that watch many
// runs at once (metrics, logging). The emitter publishes each update to the
// bus before queueing it.
//
// # Basic Usage
//
//	stream := eng.Run(ctx, packet)
//	for u := range stream.Updates() {
//	    switch u.Type {
//	    case event.TypeCritiquing:
//	        fmt.Println("critiquing", u.Phase)
//	    case event.TypeCompleted, event.TypeFailed:
//	        fmt.Println("success:", u.Result.Success)
//	    }
//	}
package event

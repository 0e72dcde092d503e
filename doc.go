// Package porter is a client runtime for the porter server. It maintains a
// single realtime websocket connection with automatic recovery, fans decoded
// events out to subscribers, invalidates cached query results when events
// announce changes, and aggregates streamed agent output into renderable
// blocks.
//
// The top-level Runtime wires the pieces together for the common case;
// consumers with different caching needs can compose the realtime, pubsub,
// invalidate, stream, querycache, and apiclient packages directly.
package porter

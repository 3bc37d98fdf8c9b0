// Package audit provides the engine's structured audit event model and an
// asynchronous dispatcher. Sinks receive events off the request path; a
// full buffer either blocks on ctx or drops with a counter, per config.
package audit

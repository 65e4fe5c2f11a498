// Package stream assembles an event-delimited byte stream into discrete
// text increments.
//
// A Reader consumes a raw byte source (typically an SSE response body) and
// emits each text increment as soon as its record is fully parseable,
// without buffering until end-of-stream. Records may be split arbitrarily
// across raw reads: the reader keeps the undecoded remainder between reads
// and reassembles records across chunk boundaries.
//
// Records follow the SSE grammar: "data: " lines carry a JSON payload with
// the text increment, a "data: [DONE]" sentinel ends the stream cleanly,
// and other SSE fields (event, id, retry, comments) are ignored. A
// malformed record is logged and skipped; it never aborts the stream.
//
// A Reader is finite and not restartable: create a new one per invocation.
package stream

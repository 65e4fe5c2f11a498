package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"

	"github.com/solstice-hq/aegis/pkg/upstream"
)

// doneSentinel is the terminal record that ends a stream without error.
const doneSentinel = "[DONE]"

// readSize is the raw read granularity.
const readSize = 4096

// chunkPayload is the JSON carried by one data record.
type chunkPayload struct {
	Text string `json:"text"`
}

// Reader incrementally decodes one event stream. Not safe for concurrent
// use; one invocation owns one Reader.
type Reader struct {
	endpoint string
	src      io.Reader
	logger   *slog.Logger

	// remainder holds undecoded bytes carried over from the previous raw
	// read; a record boundary may split a line across reads.
	remainder []byte
	buf       []byte
	srcEOF    bool
	done      bool
}

// New creates a Reader over src. The caller retains ownership of src and
// closes it after the stream ends.
func New(endpoint string, src io.Reader, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		endpoint: endpoint,
		src:      src,
		logger:   logger.With("endpoint", endpoint),
		buf:      make([]byte, readSize),
	}
}

// Next returns the next text increment. It returns io.EOF after the
// terminal sentinel or when the source is exhausted, and a taxonomy error
// when the source fails mid-stream.
func (r *Reader) Next(ctx context.Context) (string, error) {
	for {
		if r.done {
			return "", io.EOF
		}

		select {
		case <-ctx.Done():
			return "", upstream.ErrorFromContext(ctx, r.endpoint, 0)
		default:
		}

		// Drain complete lines already buffered.
		for {
			idx := bytes.IndexByte(r.remainder, '\n')
			if idx < 0 {
				break
			}
			line := r.remainder[:idx]
			r.remainder = r.remainder[idx+1:]

			text, ok := r.decodeRecord(line)
			if r.done {
				return "", io.EOF
			}
			if ok {
				return text, nil
			}
		}

		if r.srcEOF {
			// A trailing record without a final newline still counts.
			if len(r.remainder) > 0 {
				line := r.remainder
				r.remainder = nil
				if text, ok := r.decodeRecord(line); ok && !r.done {
					return text, nil
				}
			}
			r.done = true
			return "", io.EOF
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.remainder = append(r.remainder, r.buf[:n]...)
		}
		if err == io.EOF {
			r.srcEOF = true
		} else if err != nil {
			r.done = true
			if ctx.Err() != nil {
				return "", upstream.ErrorFromContext(ctx, r.endpoint, 0)
			}
			return "", upstream.NewTransportError(r.endpoint, err)
		}
	}
}

// Drain consumes the stream to completion, invoking onChunk for every
// increment, and returns the fully assembled text. onChunk may be nil.
func (r *Reader) Drain(ctx context.Context, onChunk func(string)) (string, error) {
	var assembled strings.Builder
	for {
		chunk, err := r.Next(ctx)
		if err == io.EOF {
			return assembled.String(), nil
		}
		if err != nil {
			return assembled.String(), err
		}
		assembled.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}

// decodeRecord parses one line. ok reports whether the line produced a
// text increment; the terminal sentinel sets r.done instead.
func (r *Reader) decodeRecord(line []byte) (text string, ok bool) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if len(line) == 0 {
		return "", false
	}

	// Non-data SSE fields carry no text.
	switch {
	case line[0] == ':':
		return "", false
	case bytes.HasPrefix(line, []byte("event:")),
		bytes.HasPrefix(line, []byte("id:")),
		bytes.HasPrefix(line, []byte("retry:")):
		return "", false
	}

	data, found := bytes.CutPrefix(line, []byte("data:"))
	if !found {
		r.logger.Warn("skipping malformed stream record",
			"error", upstream.NewMalformedFragment(r.endpoint, nil),
			"length", len(line),
		)
		return "", false
	}
	data = bytes.TrimSpace(data)

	if string(data) == doneSentinel {
		r.done = true
		return "", false
	}

	var payload chunkPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn("skipping malformed stream record",
			"error", upstream.NewMalformedFragment(r.endpoint, err),
			"length", len(data),
		)
		return "", false
	}
	if payload.Text == "" {
		return "", false
	}
	return payload.Text, true
}

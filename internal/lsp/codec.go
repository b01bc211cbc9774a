package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// The base protocol frames each message as one or more
// "Name: value\r\n" header lines, a bare "\r\n" separator, and exactly
// Content-Length bytes of UTF-8 body. The next frame's header begins
// immediately after the body; there is no trailing separator.

const headerContentLength = "Content-Length"

// encodeFrame serializes msg and prepends the framing header. The
// returned buffer is written to the server in a single call so header
// and body cannot interleave with another writer.
func encodeFrame(msg any) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	var b strings.Builder
	b.Grow(len(body) + 32)
	fmt.Fprintf(&b, "%s: %d\r\n\r\n", headerContentLength, len(body))
	b.Write(body)
	return []byte(b.String()), nil
}

// readFrame reads one frame's header section and body from r.
//
// An empty line before any header line has been seen means the peer
// closed its output; that is reported as io.EOF, distinct from a
// malformed header line. Short reads of the body are expected on pipes
// and are accumulated until the declared length is complete.
func readFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	sawHeader := false

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF && !sawHeader && line == "" {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !sawHeader {
				// Bare separator with no headers: the stream is closed
				// or desynchronized. Treat as end of stream.
				return nil, io.EOF
			}
			break
		}
		sawHeader = true

		name, value, ok := strings.Cut(line, ": ")
		if !ok {
			return nil, fmt.Errorf("malformed header line %q", line)
		}
		if strings.EqualFold(name, headerContentLength) {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", value)
			}
			contentLength = n
		}
		// Content-Type and unknown headers are ignored.
	}

	if contentLength < 0 {
		return nil, ErrMissingContentLength
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// decodeMessage parses a frame body into a Message. A body that is not
// valid JSON is a per-message failure: the frame is dropped and the
// stream keeps going.
func decodeMessage(body []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Package control implements the remote capture-control protocol: a wire
// decoder for `KEY = VALUE` text payloads, the capture gate shared with
// the capture loop, the state machine interpreting decoded messages, and
// the TCP client that dials the operator host.
package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Recognized message keys. Any loaded preset name is additionally
// accepted as a resolution handshake key.
const (
	KeyStart    = "START"
	KeyStop     = "STOP"
	KeyClose    = "CLOSE"
	KeyExposure = "EXPOSURE"
)

// MinPayload is the shortest meaningful payload; anything below it is
// connection noise or a half-closed socket and is dropped unqueued.
const MinPayload = 3

// separator splits a key/value payload. The spaces are part of the wire
// format.
const separator = " = "

// ErrMalformedMessage reports a payload whose value part does not parse
// as a base-10 unsigned integer. The payload is dropped and the session
// continues.
var ErrMalformedMessage = errors.New("malformed control message")

// ErrShortPayload reports a sub-3-byte payload.
var ErrShortPayload = errors.New("short control payload")

// Message is one decoded control command.
type Message struct {
	Key   string
	Value uint64
}

// Decode parses one inbound payload. A payload containing " = " decodes
// to key and unsigned value; anything else is a bare command key with
// value zero.
func Decode(payload []byte) (Message, error) {
	if len(payload) < MinPayload {
		return Message{}, ErrShortPayload
	}

	text := string(payload)
	key, value, found := strings.Cut(text, separator)
	if !found {
		return Message{Key: strings.TrimSpace(text)}, nil
	}

	v, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %q", ErrMalformedMessage, text)
	}
	return Message{Key: strings.TrimSpace(key), Value: v}, nil
}

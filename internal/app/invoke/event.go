// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedEvent is returned when an event or its body is not a JSON object.
var ErrMalformedEvent = errors.New("malformed event")

// Event is a decoded invocation event. Payload holds the caller's globals,
// with the return_globals control key still present. ContextReturn is
// return_globals taken from the event context, used when the payload does
// not carry one.
type Event struct {
	Payload       map[string]any
	ContextReturn any
	// Gateway is true when the event wrapped the payload in an HTTP body.
	Gateway bool
}

// ParseEvent decodes an invocation event. A gateway event (one with
// httpMethod or context."http-method") carries the payload as a JSON string
// in body; any other event is the payload itself. An empty event is an empty
// payload. Numbers decode as json.Number so integers survive the round trip
// through the store.
func ParseEvent(data []byte) (*Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Event{Payload: map[string]any{}}, nil
	}

	var top map[string]any
	if err := decodeObject(data, &top); err != nil {
		return nil, err
	}

	ev := &Event{}
	evCtx, _ := top["context"].(map[string]any)
	if evCtx != nil {
		ev.ContextReturn = evCtx["return_globals"]
	}

	method, _ := top["httpMethod"].(string)
	_, ctxMethod := evCtx["http-method"]
	if method == "" && !ctxMethod {
		ev.Payload = top
		return ev, nil
	}

	ev.Gateway = true
	body := "{}"
	switch b := top["body"].(type) {
	case nil:
	case string:
		if strings.TrimSpace(b) != "" {
			body = b
		}
	default:
		return nil, fmt.Errorf("%w: body must be a JSON string", ErrMalformedEvent)
	}
	if err := decodeObject([]byte(body), &ev.Payload); err != nil {
		return nil, fmt.Errorf("event body: %w", err)
	}
	return ev, nil
}

func decodeObject(data []byte, out *map[string]any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after JSON value", ErrMalformedEvent)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformedEvent)
	}
	*out = obj
	return nil
}

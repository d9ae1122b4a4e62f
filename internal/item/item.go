// Package item builds the publish item sent to the broker: one
// channel, up to three transport-specific format payloads derived
// from a single content input, plus optional id chaining and
// metadata.
package item

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"pushpub/pkg/tnetstring"
)

// Build failure modes. All are user-input errors, detected before any
// serialization or socket work happens.
var (
	ErrEmptyChannel  = errors.New("item: channel is required")
	ErrBadHeader     = errors.New("item: malformed header")
	ErrBadPatch      = errors.New("item: invalid patch JSON")
	ErrNothingToSend = errors.New("item: nothing to send")
)

// Params carries one invocation's publish inputs. Empty strings mean
// absent; Code is absent when nil.
type Params struct {
	Channel string
	Content string
	Code    *int
	Headers []string // raw "Name: value" strings, order kept
	Close   bool
	ID      string
	PrevID  string
	Sender  string
	Patch   bool
}

// Header is one HTTP response header pair. Order and duplicates are
// preserved all the way to the wire.
type Header struct {
	Name  string
	Value string
}

// HTTPResponse is the long-poll response payload: either a literal
// body or a JSON patch against prior content, plus optional status
// code and headers.
type HTTPResponse struct {
	Code    *int
	Headers []Header
	Body    string
	Patch   tnetstring.Value // body-patch; invalid kind when unset
}

// HTTPStream is the streaming payload: a chunk to append or a close
// action, never both.
type HTTPStream struct {
	Close   bool
	Content string
}

// WSMessage is the WebSocket payload.
type WSMessage struct {
	Content string
}

// Item is one publish item addressed to a channel. It is built once,
// serialized once and discarded; nothing mutates it after Build.
type Item struct {
	Channel  string
	ID       string
	PrevID   string
	Sender   string
	Response *HTTPResponse
	Stream   *HTTPStream
	WS       *WSMessage
}

// Build assembles a publish item from p.
//
// Plain content becomes an http-response body, an http-stream chunk
// and a ws-message, with a trailing newline added everywhere except
// the WebSocket payload. Patch mode replaces the body with a decoded
// JSON patch and suppresses the stream/ws derivations. Close takes
// priority over any streaming content.
func Build(p Params) (*Item, error) {
	if p.Channel == "" {
		return nil, ErrEmptyChannel
	}

	headers, err := parseHeaders(p.Headers)
	if err != nil {
		return nil, err
	}

	it := &Item{
		Channel: p.Channel,
		ID:      p.ID,
		PrevID:  p.PrevID,
		Sender:  p.Sender,
	}

	if p.Content != "" {
		hr := &HTTPResponse{Code: p.Code, Headers: headers}
		if p.Patch {
			patch, err := decodePatch(p.Content)
			if err != nil {
				return nil, err
			}
			hr.Patch = patch
		} else {
			hr.Body = p.Content + "\n"
		}
		it.Response = hr
	}

	switch {
	case p.Close:
		it.Stream = &HTTPStream{Close: true}
	case p.Content != "" && !p.Patch:
		it.Stream = &HTTPStream{Content: p.Content + "\n"}
		it.WS = &WSMessage{Content: p.Content}
	}

	if it.Response == nil && it.Stream == nil && it.WS == nil {
		return nil, ErrNothingToSend
	}
	return it, nil
}

// parseHeaders splits each raw header on its first colon and trims
// leading whitespace from the value. A header without a colon is an
// error.
func parseHeaders(raw []string) ([]Header, error) {
	var out []Header
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadHeader, h)
		}
		out = append(out, Header{
			Name:  name,
			Value: strings.TrimLeftFunc(value, unicode.IsSpace),
		})
	}
	return out, nil
}

// decodePatch parses content as exactly one JSON document and lowers
// it onto codec values: objects become dicts with sorted keys so the
// encoded bytes are deterministic, arrays become lists, strings
// byte-strings, integral numbers integers and other numbers floats.
func decodePatch(content string) (tnetstring.Value, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return tnetstring.Value{}, fmt.Errorf("%w: %v", ErrBadPatch, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return tnetstring.Value{}, fmt.Errorf("%w: trailing data after document", ErrBadPatch)
	}
	return jsonValue(doc)
}

func jsonValue(doc any) (tnetstring.Value, error) {
	switch d := doc.(type) {
	case map[string]any:
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]tnetstring.Pair, 0, len(d))
		for _, k := range keys {
			v, err := jsonValue(d[k])
			if err != nil {
				return tnetstring.Value{}, err
			}
			pairs = append(pairs, tnetstring.P(k, v))
		}
		return tnetstring.Dict(pairs...), nil
	case []any:
		elems := make([]tnetstring.Value, 0, len(d))
		for _, e := range d {
			v, err := jsonValue(e)
			if err != nil {
				return tnetstring.Value{}, err
			}
			elems = append(elems, v)
		}
		return tnetstring.List(elems...), nil
	case string:
		return tnetstring.String(d), nil
	case json.Number:
		if n, err := d.Int64(); err == nil {
			return tnetstring.Int(n), nil
		}
		f, err := d.Float64()
		if err != nil {
			return tnetstring.Value{}, fmt.Errorf("%w: number %q", ErrBadPatch, d)
		}
		return tnetstring.Float(f), nil
	case bool:
		return tnetstring.Bool(d), nil
	case nil:
		return tnetstring.Null(), nil
	}
	return tnetstring.Value{}, fmt.Errorf("%w: unsupported value %T", ErrBadPatch, doc)
}

// Value lowers the item onto the codec's value tree. This is the
// single normalization pass: every text field becomes its UTF-8
// byte-string form here and nowhere else.
func (it *Item) Value() tnetstring.Value {
	formats := make([]tnetstring.Pair, 0, 3)
	if it.Response != nil {
		formats = append(formats, tnetstring.P("http-response", it.Response.value()))
	}
	if it.Stream != nil {
		formats = append(formats, tnetstring.P("http-stream", it.Stream.value()))
	}
	if it.WS != nil {
		formats = append(formats, tnetstring.P("ws-message", it.WS.value()))
	}

	pairs := []tnetstring.Pair{
		tnetstring.P("channel", tnetstring.String(it.Channel)),
		tnetstring.P("formats", tnetstring.Dict(formats...)),
	}
	if it.ID != "" {
		pairs = append(pairs, tnetstring.P("id", tnetstring.String(it.ID)))
	}
	if it.PrevID != "" {
		pairs = append(pairs, tnetstring.P("prev-id", tnetstring.String(it.PrevID)))
	}
	if it.Sender != "" {
		pairs = append(pairs, tnetstring.P("meta", tnetstring.Dict(
			tnetstring.P("sender", tnetstring.String(it.Sender)),
		)))
	}
	return tnetstring.Dict(pairs...)
}

func (r *HTTPResponse) value() tnetstring.Value {
	var pairs []tnetstring.Pair
	if r.Patch.Kind() != tnetstring.KindInvalid {
		pairs = append(pairs, tnetstring.P("body-patch", r.Patch))
	} else {
		pairs = append(pairs, tnetstring.P("body", tnetstring.String(r.Body)))
	}
	if r.Code != nil {
		pairs = append(pairs, tnetstring.P("code", tnetstring.Int(int64(*r.Code))))
	}
	if len(r.Headers) > 0 {
		hdrs := make([]tnetstring.Value, 0, len(r.Headers))
		for _, h := range r.Headers {
			hdrs = append(hdrs, tnetstring.List(
				tnetstring.String(h.Name),
				tnetstring.String(h.Value),
			))
		}
		pairs = append(pairs, tnetstring.P("headers", tnetstring.List(hdrs...)))
	}
	return tnetstring.Dict(pairs...)
}

func (s *HTTPStream) value() tnetstring.Value {
	if s.Close {
		return tnetstring.Dict(tnetstring.P("action", tnetstring.String("close")))
	}
	return tnetstring.Dict(tnetstring.P("content", tnetstring.String(s.Content)))
}

func (w *WSMessage) value() tnetstring.Value {
	return tnetstring.Dict(tnetstring.P("content", tnetstring.String(w.Content)))
}

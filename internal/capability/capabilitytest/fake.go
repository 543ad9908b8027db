// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

// Package capabilitytest provides scripted capability fakes for provider
// tests.
package capabilitytest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/greentic/messaging-providers/internal/capability"
)

// Reply is one scripted HTTP outcome. When Err is set the request fails with
// it; otherwise Status/Body are returned.
type Reply struct {
	Status  int
	Body    []byte
	Headers []capability.Header
	Err     error
}

// JSONReply builds a reply with a JSON body.
func JSONReply(status int, body any) Reply {
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return Reply{Status: status, Body: raw}
}

// FakeHTTP records requests and answers them from a queue of replies. When
// the queue is empty it answers 200 with an empty JSON object.
type FakeHTTP struct {
	mu       sync.Mutex
	replies  []Reply
	requests []capability.Request
	options  []capability.SendOptions
}

// NewFakeHTTP creates a fake that will answer with replies in order.
func NewFakeHTTP(replies ...Reply) *FakeHTTP {
	return &FakeHTTP{replies: replies}
}

// Enqueue appends replies.
func (f *FakeHTTP) Enqueue(replies ...Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

// Send implements capability.HTTPClient.
func (f *FakeHTTP) Send(ctx context.Context, req capability.Request, opts capability.SendOptions) (capability.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	f.options = append(f.options, opts)
	if err := ctx.Err(); err != nil {
		return capability.Response{}, &capability.HTTPError{Code: capability.CodeTransportError, Message: err.Error()}
	}
	if len(f.replies) == 0 {
		return capability.Response{Status: 200, Body: []byte("{}")}, nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	if next.Err != nil {
		return capability.Response{}, next.Err
	}
	return capability.Response{Status: next.Status, Headers: next.Headers, Body: next.Body}, nil
}

// Requests returns a copy of the recorded requests.
func (f *FakeHTTP) Requests() []capability.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capability.Request(nil), f.requests...)
}

// LastRequest returns the most recent request. ok is false when none was
// sent.
func (f *FakeHTTP) LastRequest() (req capability.Request, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return capability.Request{}, false
	}
	return f.requests[len(f.requests)-1], true
}

// LastJSONBody decodes the body of the most recent request.
func (f *FakeHTTP) LastJSONBody() map[string]any {
	req, ok := f.LastRequest()
	if !ok {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(req.Body, &out); err != nil {
		return nil
	}
	return out
}

// Set returns a capability set using f for HTTP, the given secrets and a
// fresh in-memory state store.
func (f *FakeHTTP) Set(secrets map[string]string) capability.Set {
	s := capability.MapSecrets{}
	for k, v := range secrets {
		s[k] = []byte(v)
	}
	return capability.Set{
		HTTP:    f,
		Secrets: s,
		State:   capability.NewMemoryState(),
	}
}

package shared

import (
	"context"
	"sync"
)

// Actor is a snapshot of the authenticated principal carried in the ambient
// request context. A nil Actor represents a system-initiated request.
type Actor struct {
	ID    int64
	OrgID *int64
	Email string
}

// RequestInfo is the ambient per-request state: the acting principal plus
// request metadata, reachable from any code executing within the request.
// Exactly one RequestInfo is active per logical request; the request audit
// wrapper establishes it on entry and clears it on exit.
type RequestInfo struct {
	mu sync.RWMutex

	actor      *Actor
	ip         string
	userAgent  string
	requestID  string
	controller string
	action     string

	failure error
}

// NewRequestInfo builds the ambient state for one request.
func NewRequestInfo(actor *Actor, ip, userAgent, requestID, controller, action string) *RequestInfo {
	return &RequestInfo{
		actor:      actor,
		ip:         ip,
		userAgent:  userAgent,
		requestID:  requestID,
		controller: controller,
		action:     action,
	}
}

// Actor returns the acting principal snapshot, nil after Clear.
func (ri *RequestInfo) Actor() *Actor {
	if ri == nil {
		return nil
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.actor
}

// IP returns the client address recorded for the request.
func (ri *RequestInfo) IP() string {
	if ri == nil {
		return ""
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.ip
}

// UserAgent returns the client user agent recorded for the request.
func (ri *RequestInfo) UserAgent() string {
	if ri == nil {
		return ""
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.userAgent
}

// RequestID returns the pipeline-assigned request identifier.
func (ri *RequestInfo) RequestID() string {
	if ri == nil {
		return ""
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.requestID
}

// Controller returns the handler group serving the request.
func (ri *RequestInfo) Controller() string {
	if ri == nil {
		return ""
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.controller
}

// Action returns the handler action serving the request.
func (ri *RequestInfo) Action() string {
	if ri == nil {
		return ""
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.action
}

// NoteFailure records the terminal error observed while serving the request.
// The first failure wins; later calls are ignored.
func (ri *RequestInfo) NoteFailure(err error) {
	if ri == nil || err == nil {
		return
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	if ri.failure == nil {
		ri.failure = err
	}
}

// Failure returns the error noted for the request, if any.
func (ri *RequestInfo) Failure() error {
	if ri == nil {
		return nil
	}
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	return ri.failure
}

// Clear zeroes the ambient state. Any code still holding the pointer after
// the request ends reads an empty context instead of the next request's
// data. Safe to call more than once.
func (ri *RequestInfo) Clear() {
	if ri == nil {
		return
	}
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.actor = nil
	ri.ip = ""
	ri.userAgent = ""
	ri.requestID = ""
	ri.controller = ""
	ri.action = ""
	ri.failure = nil
}

type requestInfoContextKey struct{}

// Establish stores the ambient request state in context.
func Establish(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoContextKey{}, info)
}

// Current extracts the ambient request state from context. Returns nil when
// no request pipeline established one (system-initiated work).
func Current(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoContextKey{}).(*RequestInfo)
	return info
}

// CurrentActor is a convenience for the common "who is acting" lookup.
func CurrentActor(ctx context.Context) *Actor {
	return Current(ctx).Actor()
}

// NoteFailure records err against the ambient request state, if present.
func NoteFailure(ctx context.Context, err error) {
	Current(ctx).NoteFailure(err)
}

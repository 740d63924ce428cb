package obs

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// RequestInfo collects facts about a request that are only known once a
// handler has run: the matched route and the checkout session it touched.
// Middlewares share one instance per request.
type RequestInfo struct {
	mu        sync.Mutex
	route     string
	userID    string
	sessionID string
}

type requestInfoKey struct{}

// Annotate returns ctx carrying a RequestInfo, reusing one that is already present.
func Annotate(ctx context.Context) (context.Context, *RequestInfo) {
	if info := InfoFromContext(ctx); info != nil {
		return ctx, info
	}
	info := &RequestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// InfoFromContext returns the request's RequestInfo or nil.
func InfoFromContext(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*RequestInfo)
	return info
}

// SetSessionID records the checkout session a request operated on. It is a
// no-op when the context was not annotated.
func SetSessionID(ctx context.Context, id string) {
	if info := InfoFromContext(ctx); info != nil {
		info.mu.Lock()
		info.sessionID = id
		info.mu.Unlock()
	}
}

// SetUserID records the authenticated caller once auth has run.
func SetUserID(ctx context.Context, id string) {
	if info := InfoFromContext(ctx); info != nil {
		info.mu.Lock()
		info.userID = id
		info.mu.Unlock()
	}
}

// SessionIDFromContext returns the session id recorded for the request, if any.
func SessionIDFromContext(ctx context.Context) string {
	if info := InfoFromContext(ctx); info != nil {
		return info.SessionID()
	}
	return ""
}

// SessionID returns the recorded session id.
func (i *RequestInfo) SessionID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sessionID
}

// UserID returns the recorded caller.
func (i *RequestInfo) UserID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.userID
}

// Route returns the chi route pattern of r, caching it once routing has completed.
func (i *RequestInfo) Route(r *http.Request) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.route == "" {
		if rc := chi.RouteContext(r.Context()); rc != nil {
			i.route = rc.RoutePattern()
		}
	}
	return i.route
}

// RequestInfoMiddleware annotates the request before any other observability
// middleware runs so they all read the same RequestInfo.
func RequestInfoMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _ := Annotate(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func routeOrPath(info *RequestInfo, r *http.Request, fallback string) string {
	if route := info.Route(r); route != "" {
		return route
	}
	return fallback
}

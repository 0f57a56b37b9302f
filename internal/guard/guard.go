// Package guard decides whether a navigation target may be entered with the
// current session, redirecting to login or to the dashboard otherwise.
package guard

import (
	"context"
	"net/url"
	"strings"

	applog "fintrack/internal/log"
)

type Requirement int

const (
	None Requirement = iota
	RequiresAuth
	RequiresGuest
)

func (r Requirement) String() string {
	switch r {
	case RequiresAuth:
		return "auth"
	case RequiresGuest:
		return "guest"
	default:
		return "none"
	}
}

type Route struct {
	Name        string
	Path        string
	Requirement Requirement
}

const (
	RouteHome         = "home"
	RouteLogin        = "login"
	RouteRegister     = "register"
	RouteDashboard    = "dashboard"
	RouteTransactions = "transactions"
	RouteBudgets      = "budgets"
	RouteNotFound     = "not-found"
)

var routes = []Route{
	{Name: RouteHome, Path: "/", Requirement: RequiresGuest},
	{Name: RouteLogin, Path: "/login", Requirement: RequiresGuest},
	{Name: RouteRegister, Path: "/register", Requirement: RequiresGuest},
	{Name: RouteDashboard, Path: "/dashboard", Requirement: RequiresAuth},
	{Name: RouteTransactions, Path: "/transactions", Requirement: RequiresAuth},
	{Name: RouteBudgets, Path: "/budgets", Requirement: RequiresAuth},
}

var notFound = Route{Name: RouteNotFound, Requirement: None}

// Routes returns the known routes, catch-all excluded.
func Routes() []Route {
	return append([]Route(nil), routes...)
}

// Lookup returns the route with the given name.
func Lookup(name string) (Route, bool) {
	for _, r := range routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}

// Match resolves a full path (query allowed) to its route. Unknown paths
// resolve to the not-found route, which has no requirement.
func Match(fullPath string) Route {
	p := fullPath
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		p = "/"
	}
	for _, r := range routes {
		if r.Path == p {
			return r
		}
	}
	nf := notFound
	nf.Path = p
	return nf
}

type Decision struct {
	Allowed bool
	// Route names the redirect target when Allowed is false.
	Route string
	Query url.Values
}

// Location renders the redirect target, e.g. /login?redirect=%2Fbudgets.
func (d Decision) Location() string {
	if d.Allowed {
		return ""
	}
	r, _ := Lookup(d.Route)
	if len(d.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + d.Query.Encode()
}

// RedirectBack returns the path a login redirect should return to.
func (d Decision) RedirectBack() string {
	return d.Query.Get("redirect")
}

// Evaluate is the guard's decision table.
func Evaluate(req Requirement, authenticated bool, fullPath string) Decision {
	switch {
	case req == RequiresAuth && !authenticated:
		return Decision{Route: RouteLogin, Query: url.Values{"redirect": {fullPath}}}
	case req == RequiresGuest && authenticated:
		return Decision{Route: RouteDashboard}
	default:
		return Decision{Allowed: true}
	}
}

// Session is what the guard needs from session state.
type Session interface {
	Rehydrate(ctx context.Context) error
	IsAuthenticated() bool
}

type Guard struct {
	session Session
	logger  *applog.Logger
}

func New(sess Session, logger *applog.Logger) *Guard {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Guard{session: sess, logger: logger.WithComponent(applog.ComponentGuard)}
}

// Check rehydrates the session and evaluates the route of target.
func (g *Guard) Check(ctx context.Context, target string) Decision {
	if err := g.session.Rehydrate(ctx); err != nil {
		// The session is logged out after a failed read; decide on that.
		g.logger.WarnContext(ctx, "Could not read stored session", applog.FieldError, err)
	}
	route := Match(target)
	d := Evaluate(route.Requirement, g.session.IsAuthenticated(), target)
	if !d.Allowed {
		g.logger.DebugContext(ctx, "Navigation redirected",
			applog.FieldPath, target, "route", route.Name, "redirect", d.Location())
	}
	return d
}

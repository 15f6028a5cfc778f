package services

import (
	"context"
	"sync"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/ports"

	"go.uber.org/zap"
)

type Outcome int

const (
	ShowLoading Outcome = iota
	Render
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case ShowLoading:
		return "loading"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the gate's answer for one view. To and From are set for
// redirects; From is the location login should return to.
type Decision struct {
	Outcome Outcome
	To      string
	From    string
}

// Decide maps a view and a session to render, loading or redirect. It has
// no side effects. Nothing renders before the session has resolved.
func Decide(view domain.View, session domain.Session) Decision {
	if session.Status == domain.StatusUnresolved {
		return Decision{Outcome: ShowLoading}
	}

	switch view.Guard.Kind {
	case domain.GuardProtected:
		if !session.Authenticated() {
			return Decision{Outcome: Redirect, To: domain.PathLogin, From: view.Path}
		}
		if !view.Guard.Allows(session.Role()) {
			return Decision{Outcome: Redirect, To: domain.PathHome}
		}
		return Decision{Outcome: Render}
	case domain.GuardPublicOnly:
		if session.Authenticated() {
			return Decision{Outcome: Redirect, To: domain.PathHome}
		}
		return Decision{Outcome: Render}
	}
	return Decision{Outcome: Render}
}

// PostLoginDestination is where a successful login lands: back where the
// user was sent away from, or the home of the role the backend returned.
func PostLoginDestination(from string, user *domain.User) string {
	if from != "" && from != domain.PathHome {
		return from
	}
	return user.HomePath()
}

// Gate applies Decide to navigation requests.
type Gate struct {
	sessions *SessionService
	nav      ports.Navigator
	routes   domain.RouteTable
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	returnTo string
}

func NewGate(sessions *SessionService, nav ports.Navigator, routes domain.RouteTable, logger *zap.SugaredLogger) *Gate {
	if routes == nil {
		routes = domain.Routes
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Gate{sessions: sessions, nav: nav, routes: routes, logger: logger}
}

// Navigate decides path against the current session and moves the
// navigator accordingly. A loading decision moves nothing.
func (g *Gate) Navigate(ctx context.Context, path string) (domain.View, Decision) {
	view, known := g.routes.Match(path)
	if !known {
		g.logger.Debugw("no route matched", "path", path)
	}
	d := Decide(view, g.sessions.Snapshot())

	switch d.Outcome {
	case Render:
		g.nav.Navigate(view.Path, "")
	case Redirect:
		if d.From != "" {
			g.mu.Lock()
			g.returnTo = d.From
			g.mu.Unlock()
		}
		g.logger.Debugw("redirect", "from", view.Path, "to", d.To)
		g.nav.Navigate(d.To, d.From)
	}
	return view, d
}

// Resolve waits for the session to resolve, then navigates.
func (g *Gate) Resolve(ctx context.Context, path string) (domain.View, Decision, error) {
	if err := g.sessions.WaitReady(ctx); err != nil {
		view, _ := g.routes.Match(path)
		return view, Decision{Outcome: ShowLoading}, err
	}
	view, d := g.Navigate(ctx, path)
	return view, d, nil
}

// CompleteLogin sends a freshly signed-in user to their destination and
// returns it.
func (g *Gate) CompleteLogin(user *domain.User) string {
	g.mu.Lock()
	from := g.returnTo
	g.returnTo = ""
	g.mu.Unlock()

	dest := PostLoginDestination(from, user)
	g.nav.Navigate(dest, "")
	return dest
}

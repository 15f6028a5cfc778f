package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/infrastructure/navigation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allRoles = []domain.Role{domain.RoleLearner, domain.RoleCreator, domain.RoleAdmin}

func sessionAs(role domain.Role) domain.Session {
	return domain.Session{
		Status: domain.StatusAuthenticated,
		User:   &domain.User{ID: "u1", Name: "Ada", Role: role},
	}
}

// concretePath fills the parameters and wildcard of a route pattern.
func concretePath(pattern string) string {
	segs := strings.Split(strings.Trim(pattern, "/"), "/")
	for i, seg := range segs {
		switch {
		case seg == "*":
			segs[i] = "anything"
		case strings.HasPrefix(seg, ":"):
			segs[i] = "x1"
		}
	}
	return "/" + strings.Join(segs, "/")
}

func TestDecide_LoadingPrecedesEverything(t *testing.T) {
	unresolved := domain.Session{Status: domain.StatusUnresolved}
	for _, r := range domain.Routes {
		view, ok := domain.Routes.Match(concretePath(r.Pattern))
		require.True(t, ok, r.Pattern)
		assert.Equal(t, ShowLoading, Decide(view, unresolved).Outcome, r.Pattern)
	}
	notFound, _ := domain.Routes.Match("/no/such/page")
	assert.Equal(t, ShowLoading, Decide(notFound, unresolved).Outcome)
}

func TestDecide_RoleGate(t *testing.T) {
	for _, r := range domain.Routes {
		if r.Guard.Kind != domain.GuardProtected {
			continue
		}
		view, _ := domain.Routes.Match(concretePath(r.Pattern))
		for _, role := range allRoles {
			d := Decide(view, sessionAs(role))
			allowed := len(view.Guard.Roles) == 0
			for _, want := range view.Guard.Roles {
				allowed = allowed || want == role
			}
			if allowed {
				assert.Equal(t, Render, d.Outcome, "%s as %s", r.Pattern, role)
			} else {
				assert.Equal(t, Decision{Outcome: Redirect, To: domain.PathHome}, d, "%s as %s", r.Pattern, role)
			}
		}
	}
}

func TestDecide_AnonymousRedirectsToLogin(t *testing.T) {
	anonymous := domain.Session{Status: domain.StatusAnonymous}
	for _, r := range domain.Routes {
		path := concretePath(r.Pattern)
		view, _ := domain.Routes.Match(path)
		d := Decide(view, anonymous)
		if r.Guard.Kind == domain.GuardProtected {
			assert.Equal(t, Decision{Outcome: Redirect, To: domain.PathLogin, From: path}, d, r.Pattern)
		} else {
			assert.Equal(t, Render, d.Outcome, r.Pattern)
		}
	}
}

func TestDecide_PublicOnlyRedirectsSignedIn(t *testing.T) {
	for _, path := range []string{domain.PathLogin, domain.PathRegister, domain.PathAdminLogin} {
		view, _ := domain.Routes.Match(path)
		assert.Equal(t, Decision{Outcome: Redirect, To: domain.PathHome}, Decide(view, sessionAs(domain.RoleLearner)), path)
	}
}

func TestDecide_UnguardedRendersForEveryone(t *testing.T) {
	view, _ := domain.Routes.Match("/courses/abc")
	assert.Equal(t, Render, Decide(view, domain.Session{Status: domain.StatusAnonymous}).Outcome)
	assert.Equal(t, Render, Decide(view, sessionAs(domain.RoleAdmin)).Outcome)
}

func TestPostLoginDestination(t *testing.T) {
	creator := &domain.User{Role: domain.RoleCreator}
	assert.Equal(t, domain.PathCreatorHome, PostLoginDestination("", creator))
	assert.Equal(t, domain.PathCreatorHome, PostLoginDestination(domain.PathHome, creator))
	assert.Equal(t, "/profile", PostLoginDestination("/profile", creator))
	assert.Equal(t, domain.PathAdminHome, PostLoginDestination("", &domain.User{Role: domain.RoleAdmin}))
	assert.Equal(t, domain.PathLearnerHome, PostLoginDestination("", &domain.User{Role: domain.RoleLearner}))
}

func TestGate_NavigateMovesHistory(t *testing.T) {
	sessions := NewSessionService(nil, nil, nil, nil)
	history := navigation.NewHistory("/")
	gate := NewGate(sessions, history, nil, nil)
	ctx := context.Background()

	_, d := gate.Navigate(ctx, domain.PathProfile)
	assert.Equal(t, ShowLoading, d.Outcome)
	assert.Equal(t, "/", history.Location())

	sessions.dispatch(domain.LoginSucceeded{User: domain.User{ID: "u1", Role: domain.RoleAdmin}})

	view, d := gate.Navigate(ctx, "/admin/users/42/details")
	assert.Equal(t, Render, d.Outcome)
	assert.Equal(t, "admin-user-details", view.Name)
	assert.Equal(t, "42", view.Params["id"])
	assert.Equal(t, "/admin/users/42/details", history.Location())

	_, d = gate.Navigate(ctx, domain.PathLearnerHome)
	assert.Equal(t, Redirect, d.Outcome)
	assert.Equal(t, domain.PathHome, history.Location())
}

func TestGate_ResolveWaitsForSession(t *testing.T) {
	sessions := NewSessionService(nil, nil, nil, nil)
	gate := NewGate(sessions, navigation.NewHistory("/"), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, d, err := gate.Resolve(ctx, domain.PathProfile)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ShowLoading, d.Outcome)

	go func() {
		sessions.dispatch(domain.LoadingResolved{})
		sessions.markReady()
	}()

	_, d, err = gate.Resolve(context.Background(), domain.PathProfile)
	require.NoError(t, err)
	assert.Equal(t, Redirect, d.Outcome)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "loading", ShowLoading.String())
	assert.Equal(t, "render", Render.String())
	assert.Equal(t, "redirect", Redirect.String())
}

package domain

import (
	"strings"
)

const (
	PathHome        = "/"
	PathLogin       = "/login"
	PathRegister    = "/register"
	PathAdminLogin  = "/admin/login"
	PathProfile     = "/profile"
	PathCourses     = "/courses"
	PathLearnerHome = "/learner/dashboard"
	PathCreatorHome = "/creator/dashboard"
	PathAdminHome   = "/admin/dashboard"
	PathNotFound    = "*"
)

type GuardKind int

const (
	GuardNone GuardKind = iota
	GuardProtected
	GuardPublicOnly
)

func (k GuardKind) String() string {
	switch k {
	case GuardProtected:
		return "protected"
	case GuardPublicOnly:
		return "public-only"
	default:
		return "none"
	}
}

// Guard describes who may see a view. For GuardProtected an empty Roles
// means any authenticated role.
type Guard struct {
	Kind  GuardKind
	Roles []Role
}

func Unguarded() Guard              { return Guard{Kind: GuardNone} }
func PublicOnly() Guard             { return Guard{Kind: GuardPublicOnly} }
func Protected(roles ...Role) Guard { return Guard{Kind: GuardProtected, Roles: roles} }

func (g Guard) Allows(r Role) bool {
	if len(g.Roles) == 0 {
		return true
	}
	for _, allowed := range g.Roles {
		if allowed == r {
			return true
		}
	}
	return false
}

// View is a navigation target: the concrete path requested plus the guard
// of the route it matched.
type View struct {
	Name    string
	Pattern string
	Path    string
	Params  map[string]string
	Guard   Guard
}

type Route struct {
	Name    string
	Pattern string
	Guard   Guard
}

// RouteTable resolves paths to views. Among matching routes the most
// specific one wins: static segments outrank parameters, which outrank a
// trailing wildcard.
type RouteTable []Route

// Routes is the application's route table.
var Routes = RouteTable{
	{"home", "/", Unguarded()},
	{"courses", "/courses", Unguarded()},
	{"course-detail", "/courses/:id", Unguarded()},

	{"login", "/login", PublicOnly()},
	{"register", "/register", PublicOnly()},
	{"admin-login", "/admin/login", PublicOnly()},

	{"profile", "/profile", Protected()},

	{"learner-dashboard", "/learner/dashboard", Protected(RoleLearner)},
	{"learning", "/learner/courses/:courseId/learn", Protected(RoleLearner)},
	{"learner", "/learner/*", Protected(RoleLearner)},

	{"creator-dashboard", "/creator/dashboard", Protected(RoleCreator)},
	{"create-course", "/creator/courses/create", Protected(RoleCreator)},
	{"edit-course", "/creator/courses/:id/edit", Protected(RoleCreator)},
	{"lesson-manager", "/creator/courses/:courseId/lessons", Protected(RoleCreator)},
	{"creator", "/creator/*", Protected(RoleCreator)},

	{"admin-dashboard", "/admin/dashboard", Protected(RoleAdmin)},
	{"admin-users", "/admin/users", Protected(RoleAdmin)},
	{"admin-learners", "/admin/learners", Protected(RoleAdmin)},
	{"admin-creators", "/admin/creators", Protected(RoleAdmin)},
	{"admin-user-details", "/admin/users/:id/details", Protected(RoleAdmin)},
	{"admin-course-review", "/admin/courses/:id/review", Protected(RoleAdmin)},
	{"admin", "/admin/*", Protected(RoleAdmin)},
}

// Match resolves path. Unknown paths yield the unguarded not-found view and
// false.
func (rt RouteTable) Match(path string) (View, bool) {
	path = cleanPath(path)
	segs := splitPath(path)

	best := -1
	bestScore := -1
	var bestParams map[string]string
	for i, r := range rt {
		params, score, ok := matchPattern(r.Pattern, segs)
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore, bestParams = i, score, params
		}
	}

	if best < 0 {
		return View{Name: "not-found", Pattern: PathNotFound, Path: path, Guard: Unguarded()}, false
	}
	r := rt[best]
	return View{Name: r.Name, Pattern: r.Pattern, Path: path, Params: bestParams, Guard: r.Guard}, true
}

const (
	scoreStatic   = 10
	scoreParam    = 3
	scoreWildcard = -2
)

func matchPattern(pattern string, segs []string) (map[string]string, int, bool) {
	psegs := splitPath(pattern)
	params := map[string]string{}
	score := 1

	for i, p := range psegs {
		if p == "*" {
			if i != len(psegs)-1 || len(segs) < i {
				return nil, 0, false
			}
			params["*"] = strings.Join(segs[i:], "/")
			return params, score + scoreWildcard, true
		}
		if i >= len(segs) {
			return nil, 0, false
		}
		switch {
		case strings.HasPrefix(p, ":"):
			params[p[1:]] = segs[i]
			score += scoreParam
		case p == segs[i]:
			score += scoreStatic
		default:
			return nil, 0, false
		}
	}

	if len(psegs) != len(segs) {
		return nil, 0, false
	}
	return params, score, true
}

func cleanPath(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" || p[0] != '/' {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

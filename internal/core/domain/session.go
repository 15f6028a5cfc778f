package domain

import (
	"encoding/json"
)

type Status int

const (
	StatusUnresolved Status = iota
	StatusAuthenticated
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusUnresolved:
		return "unresolved"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Session is a snapshot of who is logged in. User is non-nil exactly when
// Status is StatusAuthenticated.
type Session struct {
	Status Status
	User   *User
}

func (s Session) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

func (s Session) Role() Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

// Clone returns a session whose user can be modified freely.
func (s Session) Clone() Session {
	return Session{Status: s.Status, User: s.User.Clone()}
}

// Action is one of LoginSucceeded, LogoutCompleted, IdentityUpdated or
// LoadingResolved.
type Action interface {
	action()
}

type LoginSucceeded struct {
	User User
}

type LogoutCompleted struct{}

// IdentityUpdated carries a JSON object whose top-level fields replace the
// corresponding fields of the current user.
type IdentityUpdated struct {
	Patch json.RawMessage
}

type LoadingResolved struct{}

func (LoginSucceeded) action()  {}
func (LogoutCompleted) action() {}
func (IdentityUpdated) action() {}
func (LoadingResolved) action() {}

// Reduce applies a to s and returns the next session. s is never modified.
func Reduce(s Session, a Action) Session {
	switch act := a.(type) {
	case LoginSucceeded:
		u := act.User
		return Session{Status: StatusAuthenticated, User: u.Clone()}

	case LogoutCompleted:
		return Session{Status: StatusAnonymous}

	case IdentityUpdated:
		if !s.Authenticated() {
			return s.Clone()
		}
		merged, err := mergeUser(s.User, act.Patch)
		if err != nil {
			return s.Clone()
		}
		return Session{Status: StatusAuthenticated, User: merged}

	case LoadingResolved:
		if s.Status == StatusUnresolved {
			return Session{Status: StatusAnonymous}
		}
		return s.Clone()
	}
	return s.Clone()
}

func mergeUser(u *User, patch json.RawMessage) (*User, error) {
	base, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}

	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		fields[k] = v
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var merged User
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// Clone deep-copies u. A nil user clones to nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.CreatedAt != nil {
		t := *u.CreatedAt
		c.CreatedAt = &t
	}
	if u.CreatorApplication != nil {
		app := *u.CreatorApplication
		if app.AppliedAt != nil {
			t := *app.AppliedAt
			app.AppliedAt = &t
		}
		app.Expertise = append([]string(nil), app.Expertise...)
		c.CreatorApplication = &app
	}
	return &c
}

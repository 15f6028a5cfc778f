package main

import (
	"context"
	"flag"
	"strings"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/services"
	"microcourses/pkg/utils"
)

func cmdLogin(ctx context.Context, e *cmdEnv, args []string) error {
	var req domain.LoginRequest
	var role string
	if _, err := flags("login", args, func(fs *flag.FlagSet) {
		fs.StringVar(&req.Email, "email", "", "")
		fs.StringVar(&req.Password, "password", "", "")
		fs.StringVar(&role, "role", "", "")
	}); err != nil {
		return err
	}
	req.Role = domain.Role(role)
	req.Email = utils.NormalizeEmail(req.Email)

	r := e.app.Sessions.Login(ctx, req)
	if !r.Success {
		return e.result(r, "")
	}
	dest := e.app.Gate.CompleteLogin(r.User)
	e.printf("signed in as %s (%s)\nhome: %s\n", r.User.Name, r.User.Role, dest)
	return nil
}

func cmdRegister(ctx context.Context, e *cmdEnv, args []string) error {
	var req domain.RegisterRequest
	var role string
	if _, err := flags("register", args, func(fs *flag.FlagSet) {
		fs.StringVar(&req.Name, "name", "", "")
		fs.StringVar(&req.Email, "email", "", "")
		fs.StringVar(&req.Password, "password", "", "")
		fs.StringVar(&role, "role", string(domain.RoleLearner), "")
	}); err != nil {
		return err
	}
	req.Role = domain.Role(role)
	req.Email = utils.NormalizeEmail(req.Email)

	r := e.app.Sessions.Register(ctx, req)
	if !r.Success {
		return e.result(r, "")
	}
	dest := e.app.Gate.CompleteLogin(r.User)
	e.printf("welcome, %s\nhome: %s\n", r.User.Name, dest)
	return nil
}

func cmdLogout(ctx context.Context, e *cmdEnv, _ []string) error {
	e.app.Sessions.Logout(ctx)
	e.printf("signed out\n")
	return nil
}

func cmdWhoami(_ context.Context, e *cmdEnv, _ []string) error {
	s := e.app.Sessions.Snapshot()
	if !s.Authenticated() {
		e.printf("%s\n", s.Status)
		return nil
	}
	printUser(e, s.User)
	return nil
}

func printUser(e *cmdEnv, u *domain.User) {
	w := e.table()
	defer w.Flush()
	row(w, "id", string(u.ID))
	row(w, "name", u.Name)
	row(w, "email", u.Email)
	row(w, "role", string(u.Role))
	if u.Bio != "" {
		row(w, "bio", u.Bio)
	}
	if u.Avatar != "" {
		row(w, "avatar", u.Avatar)
	}
	if app := u.CreatorApplication; app != nil && app.Status != "" {
		row(w, "creator application", string(app.Status))
		if app.RejectionReason != "" {
			row(w, "rejection reason", app.RejectionReason)
		}
	}
}

func cmdProfile(ctx context.Context, e *cmdEnv, args []string) error {
	var update domain.ProfileUpdate
	if _, err := flags("profile", args, func(fs *flag.FlagSet) {
		fs.StringVar(&update.Name, "name", "", "")
		fs.StringVar(&update.Bio, "bio", "", "")
		fs.StringVar(&update.Avatar, "avatar", "", "")
	}); err != nil {
		return err
	}

	if update != (domain.ProfileUpdate{}) {
		if err := e.result(e.app.Sessions.UpdateProfile(ctx, update), ""); err != nil {
			return err
		}
	}
	printUser(e, e.app.Sessions.Snapshot().User)
	return nil
}

func cmdPassword(ctx context.Context, e *cmdEnv, args []string) error {
	var change domain.PasswordChange
	if _, err := flags("password", args, func(fs *flag.FlagSet) {
		fs.StringVar(&change.CurrentPassword, "current", "", "")
		fs.StringVar(&change.NewPassword, "new", "", "")
	}); err != nil {
		return err
	}
	if change.CurrentPassword == "" || change.NewPassword == "" {
		return badUsage("both -current and -new are required")
	}
	return e.result(e.app.Sessions.ChangePassword(ctx, change), "password changed")
}

func cmdApplyCreator(ctx context.Context, e *cmdEnv, args []string) error {
	var req domain.CreatorApplicationRequest
	var expertise string
	if _, err := flags("apply-creator", args, func(fs *flag.FlagSet) {
		fs.StringVar(&req.Motivation, "motivation", "", "")
		fs.StringVar(&expertise, "expertise", "", "")
		fs.StringVar(&req.Experience, "experience", "", "")
		fs.StringVar(&req.Portfolio, "portfolio", "", "")
	}); err != nil {
		return err
	}
	req.Expertise = splitList(expertise)

	r := e.app.Sessions.ApplyForCreator(ctx, req)
	if err := e.result(r, ""); err != nil {
		return err
	}
	status := domain.ApplicationPending
	if app := e.app.Sessions.Snapshot().User.CreatorApplication; app != nil && app.Status != "" {
		status = app.Status
	}
	e.printf("creator application %s\n", status)
	return nil
}

func cmdOpen(ctx context.Context, e *cmdEnv, args []string) error {
	if len(args) != 1 {
		return badUsage("one path is required")
	}
	view, d, err := e.app.Gate.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	w := e.table()
	defer w.Flush()
	row(w, "view", view.Name)
	row(w, "guard", view.Guard.Kind.String())
	row(w, "decision", d.Outcome.String())
	if d.Outcome == services.Redirect {
		row(w, "redirect", d.To)
	}
	row(w, "location", e.app.History.Location())
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"microcourses/internal/app"
	"microcourses/internal/core/domain"
	"microcourses/internal/core/services"
)

var (
	errLoginRequired   = errors.New("login required")
	errNotPermitted    = errors.New("not permitted for your role")
	errAlreadySignedIn = errors.New("already signed in, run logout first")
)

type usageError struct{ msg string }

func (e usageError) Error() string { return "usage: " + e.msg }

func badUsage(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// command is one terminal verb. route, when set, names the view the command
// stands for; the gate must render it before run is called.
type command struct {
	name    string
	usage   string
	summary string
	route   func(args []string) string
	run     func(ctx context.Context, e *cmdEnv, args []string) error
}

func static(path string) func([]string) string {
	return func([]string) string { return path }
}

var commands []command

func init() {
	commands = []command{
		{"login", "-email E -password P [-role R]", "sign in", static(domain.PathLogin), cmdLogin},
		{"register", "-name N -email E -password P [-role R]", "create an account", static(domain.PathRegister), cmdRegister},
		{"logout", "", "sign out", nil, cmdLogout},
		{"whoami", "", "show the current session", nil, cmdWhoami},
		{"profile", "[-name N] [-bio B] [-avatar URL]", "show or update the profile", static(domain.PathProfile), cmdProfile},
		{"password", "-current P -new P", "change the password", static(domain.PathProfile), cmdPassword},
		{"apply-creator", "-motivation M [-expertise a,b] [-experience E] [-portfolio URL]", "apply to become a creator", static(domain.PathLearnerHome), cmdApplyCreator},
		{"open", "<path>", "show what a path resolves to", nil, cmdOpen},
		{"courses", "[-search S] [-category C] [-level L] [-sort S] [-min-price P] [-max-price P] [-page N] [-limit N]", "browse the catalog", static(domain.PathCourses), cmdCourses},
		{"course", "<courseId>", "show a course", courseRoute, cmdCourse},
		{"enroll", "<courseId>", "enroll in a course", static(domain.PathLearnerHome), cmdEnroll},
		{"rate", "<courseId> <1-5>", "rate a course", static(domain.PathLearnerHome), cmdRate},
		{"my-courses", "", "list enrolled courses", static(domain.PathLearnerHome), cmdMyCourses},
		{"recommend", "[-limit N]", "recommended courses", static(domain.PathHome), cmdRecommend},
		{"stats", "", "learning statistics", static(domain.PathLearnerHome), cmdStats},
		{"learn", "<courseId> [-lesson ID] [-watch SECONDS] [-step SECONDS] [-end] [-complete]", "play lessons of a course", learnRoute, cmdLearn},
		{"certificate", "<courseId> -o FILE", "download a completion certificate", static(domain.PathLearnerHome), cmdCertificate},
		{"progress", "<courseId> | export <courseId> | import <courseId> FILE | backup | backups | restore [-name N] [-overwrite]", "local watch progress", nil, cmdProgress},
		{"creator", "courses [-status S] | create -title T [...] | submit <courseId> | delete <courseId> | lessons <courseId> | add-lesson <courseId> -title T [-video FILE] | analytics <courseId>", "creator tools", static(domain.PathCreatorHome), cmdCreator},
		{"admin", "dashboard | pending | approve <courseId> | reject <courseId> -reason R | applications | approve-creator <userId> | reject-creator <userId> -reason R | users [-role R] [-search S] | block <userId> -reason R | unblock <userId> | logs", "admin tools", static(domain.PathAdminHome), cmdAdmin},
		{"doctor", "", "check configuration, storage and backend", nil, cmdDoctor},
		{"agent", "", "serve metrics and run scheduled backups until interrupted", nil, cmdAgent},
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func courseRoute(args []string) string {
	if len(args) == 0 {
		return domain.PathCourses
	}
	return domain.PathCourses + "/" + args[0]
}

func learnRoute(args []string) string {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return domain.PathLearnerHome
	}
	return "/learner/courses/" + args[0] + "/learn"
}

type cmdEnv struct {
	app *app.App
	in  io.Reader
	out io.Writer
	err io.Writer
}

func (e *cmdEnv) exec(ctx context.Context, c command, args []string) error {
	if c.route != nil {
		if err := e.enter(ctx, c.route(args)); err != nil {
			return err
		}
	}
	return c.run(ctx, e, args)
}

// enter asks the gate for path and turns a redirect into an error.
func (e *cmdEnv) enter(ctx context.Context, path string) error {
	view, d, err := e.app.Gate.Resolve(ctx, path)
	if err != nil {
		return err
	}
	if d.Outcome == services.Render {
		return nil
	}
	switch {
	case d.To == domain.PathLogin:
		return errLoginRequired
	case view.Guard.Kind == domain.GuardPublicOnly:
		return errAlreadySignedIn
	default:
		return errNotPermitted
	}
}

func (e *cmdEnv) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

func (e *cmdEnv) table() *tabwriter.Writer {
	return tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
}

func (e *cmdEnv) result(r services.Result, ok string) error {
	if !r.Success {
		return errors.New(r.Message)
	}
	if ok != "" {
		e.printf("%s\n", ok)
	}
	return nil
}

// flags parses args into a new flag set. Positional arguments may come
// before or after the flags.
func flags(name string, args []string, define func(fs *flag.FlagSet)) ([]string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	define(fs)

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, badUsage("%v", err)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	return positional, nil
}

func row(w io.Writer, key, value string) {
	fmt.Fprintf(w, "%s\t%s\n", key, value)
}

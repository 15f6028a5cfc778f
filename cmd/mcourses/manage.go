package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"microcourses/internal/core/domain"
	"microcourses/internal/infrastructure/apiclient"
	backupinfra "microcourses/internal/infrastructure/backup"
	"microcourses/pkg/utils"

	"golang.org/x/sync/errgroup"
)

func subcommand(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

// progress

func cmdProgress(ctx context.Context, e *cmdEnv, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "":
		return badUsage("a course id or subcommand is required")
	case "export":
		return progressExport(ctx, e, rest)
	case "import":
		return progressImport(ctx, e, rest)
	case "backup":
		scheduler, _, err := e.app.Backups()
		if err != nil {
			return err
		}
		name, err := scheduler.BackupNow(ctx, "manual")
		if err != nil {
			return err
		}
		e.printf("backup %s written to %s\n", name, e.app.Config.Backup.Dir)
		return nil
	case "backups":
		_, restore, err := e.app.Backups()
		if err != nil {
			return err
		}
		names, err := restore.List(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			e.printf("no backups in %s\n", e.app.Config.Backup.Dir)
		}
		for _, n := range names {
			e.printf("%s\n", n)
		}
		return nil
	case "restore":
		return progressRestore(ctx, e, rest)
	default:
		return progressShow(ctx, e, args)
	}
}

func progressShow(ctx context.Context, e *cmdEnv, args []string) error {
	courseID, err := courseArg(args)
	if err != nil {
		return err
	}
	tracker := e.app.Tracker(courseID)
	records := tracker.Load(ctx)
	if len(records) == 0 {
		e.printf("no saved progress for %s\n", courseID)
		return nil
	}

	ids := make([]domain.LessonID, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	w := e.table()
	defer w.Flush()
	fmt.Fprintln(w, "LESSON\tPOSITION\tWATCHED\tLAST WATCHED")
	for _, id := range ids {
		r := records[id]
		fmt.Fprintf(w, "%s\t%s / %s\t%d%%\t%s\n",
			id, clock(r.CurrentTime), clock(r.Duration), tracker.PercentWatched(id), r.LastWatched.Local().Format(time.DateTime))
	}
	return nil
}

func progressExport(ctx context.Context, e *cmdEnv, args []string) error {
	var out string
	pos, err := flags("progress export", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "")
	})
	if err != nil {
		return err
	}
	courseID, err := courseArg(pos)
	if err != nil {
		return err
	}

	tracker := e.app.Tracker(courseID)
	tracker.Load(ctx)
	blob, err := tracker.Export(ctx)
	if err != nil {
		return err
	}
	if out == "" {
		e.printf("%s\n", blob)
		return nil
	}
	if err := os.WriteFile(out, blob, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	e.printf("progress for %s saved to %s\n", courseID, out)
	return nil
}

func progressImport(ctx context.Context, e *cmdEnv, args []string) error {
	if len(args) != 2 {
		return badUsage("a course id and a file are required")
	}
	courseID, err := courseArg(args)
	if err != nil {
		return err
	}

	var blob []byte
	if args[1] == "-" {
		blob, err = io.ReadAll(e.in)
	} else {
		blob, err = os.ReadFile(args[1])
	}
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	if err := e.app.Tracker(courseID).Import(ctx, blob); err != nil {
		return err
	}
	e.printf("progress for %s imported\n", courseID)
	return nil
}

func progressRestore(ctx context.Context, e *cmdEnv, args []string) error {
	var (
		name    string
		courses string
	)
	opts := backupinfra.DefaultRestoreOptions()
	if _, err := flags("progress restore", args, func(fs *flag.FlagSet) {
		fs.StringVar(&name, "name", "", "")
		fs.StringVar(&courses, "courses", "", "")
		fs.BoolVar(&opts.OverwriteExisting, "overwrite", false, "")
	}); err != nil {
		return err
	}
	for _, id := range splitList(courses) {
		opts.Courses = append(opts.Courses, domain.CourseID(id))
	}

	_, restore, err := e.app.Backups()
	if err != nil {
		return err
	}
	res, err := restore.RestoreFromBackup(ctx, name, opts)
	if errors.Is(err, backupinfra.ErrNoBackup) {
		return fmt.Errorf("no backups in %s", e.app.Config.Backup.Dir)
	}
	if err != nil {
		return err
	}
	e.printf("restored %d courses, skipped %d\n", res.Restored, res.Skipped)
	return nil
}

// creator

func cmdCreator(ctx context.Context, e *cmdEnv, args []string) error {
	sub, rest := subcommand(args)
	switch sub {
	case "courses":
		var status string
		if _, err := flags("creator courses", rest, func(fs *flag.FlagSet) {
			fs.StringVar(&status, "status", "", "")
		}); err != nil {
			return err
		}
		q := url.Values{}
		if status != "" {
			q.Set("status", status)
		}
		courses, err := e.app.Client.Creator.Courses(ctx, q)
		if err != nil {
			return err
		}
		w := e.table()
		defer w.Flush()
		fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tENROLLED")
		for _, c := range courses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", c.ID, text(c.Title), utils.Capitalize(string(c.Status)), c.EnrollmentCount)
		}
		return nil
	case "create":
		return creatorCreate(ctx, e, rest)
	case "submit":
		id, err := courseArg(rest)
		if err != nil {
			return err
		}
		if err := e.app.Client.Creator.SubmitCourse(ctx, id); err != nil {
			return err
		}
		e.printf("%s submitted for review\n", id)
		return nil
	case "lessons":
		id, err := courseArg(rest)
		if err != nil {
			return err
		}
		lessons, err := e.app.Client.Creator.CourseLessons(ctx, id)
		if err != nil {
			return err
		}
		w := e.table()
		defer w.Flush()
		for _, l := range lessons {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", l.Order, l.ID, text(l.Title), clock(l.Duration))
		}
		return nil
	case "delete":
		id, err := courseArg(rest)
		if err != nil {
			return err
		}
		if err := e.app.Client.Creator.DeleteCourse(ctx, id); err != nil {
			return err
		}
		e.printf("deleted %s\n", id)
		return nil
	case "add-lesson":
		return creatorAddLesson(ctx, e, rest)
	case "analytics":
		id, err := courseArg(rest)
		if err != nil {
			return err
		}
		stats, err := e.app.Client.Creator.Analytics(ctx, id)
		if err != nil {
			return err
		}
		return printJSON(e, stats)
	default:
		return badUsage("unknown creator subcommand %q", sub)
	}
}

func creatorCreate(ctx context.Context, e *cmdEnv, args []string) error {
	var (
		in        apiclient.CourseInput
		tags      string
		thumbnail string
	)
	if _, err := flags("creator create", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Title, "title", "", "")
		fs.StringVar(&in.Description, "description", "", "")
		fs.StringVar(&in.ShortDescription, "summary", "", "")
		fs.StringVar(&in.Category, "category", "", "")
		fs.StringVar(&in.Level, "level", "beginner", "")
		fs.Float64Var(&in.Price, "price", 0, "")
		fs.StringVar(&tags, "tags", "", "")
		fs.StringVar(&thumbnail, "thumbnail", "", "")
	}); err != nil {
		return err
	}
	if in.Title == "" {
		return badUsage("-title is required")
	}
	in.Tags = splitList(tags)

	if thumbnail != "" {
		f, err := os.Open(thumbnail)
		if err != nil {
			return fmt.Errorf("open thumbnail: %w", err)
		}
		defer f.Close()
		in.Thumbnail = &apiclient.FormFile{FileName: filepath.Base(thumbnail), Content: f}
	}

	course, err := e.app.Client.Creator.CreateCourse(ctx, in)
	if err != nil {
		return err
	}
	e.printf("created %s (%s)\n", course.ID, course.Status)
	return nil
}

func creatorAddLesson(ctx context.Context, e *cmdEnv, args []string) error {
	var (
		in    apiclient.LessonInput
		video string
	)
	pos, err := flags("creator add-lesson", args, func(fs *flag.FlagSet) {
		fs.StringVar(&in.Title, "title", "", "")
		fs.StringVar(&in.Description, "description", "", "")
		fs.IntVar(&in.Order, "order", 0, "")
		fs.BoolVar(&in.IsFree, "free", false, "")
		fs.StringVar(&video, "video", "", "")
	})
	if err != nil {
		return err
	}
	id, err := courseArg(pos)
	if err != nil {
		return err
	}
	if in.Title == "" {
		return badUsage("-title is required")
	}

	if video != "" {
		f, err := os.Open(video)
		if err != nil {
			return fmt.Errorf("open video: %w", err)
		}
		defer f.Close()
		in.Video = &apiclient.FormFile{FileName: filepath.Base(video), Content: f}
	}

	lesson, err := e.app.Client.Creator.CreateLesson(ctx, id, in)
	if err != nil {
		return err
	}
	e.printf("added lesson %s to %s\n", lesson.ID, id)
	return nil
}

// admin

var pastTense = map[string]string{
	"approve":         "approved",
	"reject":          "rejected",
	"approve-creator": "approved",
	"reject-creator":  "rejected",
	"block":           "blocked",
	"unblock":         "unblocked",
}

func cmdAdmin(ctx context.Context, e *cmdEnv, args []string) error {
	admin := e.app.Client.Admin
	sub, rest := subcommand(args)
	switch sub {
	case "dashboard":
		stats, err := admin.Dashboard(ctx)
		if err != nil {
			return err
		}
		s := stats.Statistics
		w := e.table()
		defer w.Flush()
		row(w, "users", strconv.Itoa(s.TotalUsers))
		row(w, "courses", strconv.Itoa(s.TotalCourses))
		row(w, "revenue", price(s.TotalRevenue))
		row(w, "pending creator applications", strconv.Itoa(s.PendingCreatorApplications))
		return nil
	case "pending":
		courses, err := admin.PendingCourses(ctx)
		if err != nil {
			return err
		}
		printCourses(e, courses)
		return nil
	case "approve", "reject":
		var note string
		pos, err := flags("admin "+sub, rest, func(fs *flag.FlagSet) {
			fs.StringVar(&note, "feedback", "", "")
			fs.StringVar(&note, "reason", "", "")
		})
		if err != nil {
			return err
		}
		id, err := courseArg(pos)
		if err != nil {
			return err
		}
		if sub == "approve" {
			err = admin.ApproveCourse(ctx, id, note)
		} else {
			if note == "" {
				return badUsage("-reason is required")
			}
			err = admin.RejectCourse(ctx, id, note)
		}
		if err != nil {
			return err
		}
		e.printf("course %s %s\n", id, pastTense[sub])
		return nil
	case "applications":
		q := url.Values{}
		q.Set("status", string(domain.ApplicationPending))
		users, err := admin.CreatorApplications(ctx, q)
		if err != nil {
			return err
		}
		printUsers(e, users)
		return nil
	case "approve-creator", "reject-creator":
		var reason string
		pos, err := flags("admin "+sub, rest, func(fs *flag.FlagSet) {
			fs.StringVar(&reason, "reason", "", "")
		})
		if err != nil {
			return err
		}
		if len(pos) == 0 {
			return badUsage("a user id is required")
		}
		id := domain.UserID(pos[0])
		if sub == "approve-creator" {
			err = admin.ApproveCreator(ctx, id)
		} else {
			if reason == "" {
				return badUsage("-reason is required")
			}
			err = admin.RejectCreator(ctx, id, reason)
		}
		if err != nil {
			return err
		}
		e.printf("application of %s %s\n", id, pastTense[sub])
		return nil
	case "block", "unblock":
		var reason string
		pos, err := flags("admin "+sub, rest, func(fs *flag.FlagSet) {
			fs.StringVar(&reason, "reason", "", "")
		})
		if err != nil {
			return err
		}
		if len(pos) == 0 {
			return badUsage("a user id is required")
		}
		id := domain.UserID(pos[0])
		if sub == "block" {
			if reason == "" {
				return badUsage("-reason is required")
			}
			err = admin.BlockUser(ctx, id, reason)
		} else {
			err = admin.UnblockUser(ctx, id)
		}
		if err != nil {
			return err
		}
		e.printf("user %s %s\n", id, pastTense[sub])
		return nil
	case "logs":
		logs, err := admin.Logs(ctx)
		if err != nil {
			return err
		}
		return printJSON(e, logs)
	case "users":
		var role, search string
		if _, err := flags("admin users", rest, func(fs *flag.FlagSet) {
			fs.StringVar(&role, "role", "", "")
			fs.StringVar(&search, "search", "", "")
		}); err != nil {
			return err
		}
		q := url.Values{}
		if search != "" {
			q.Set("search", search)
		}
		var (
			page *apiclient.UserPage
			err  error
		)
		switch domain.Role(role) {
		case domain.RoleLearner:
			page, err = admin.Learners(ctx, q)
		case domain.RoleCreator:
			page, err = admin.Creators(ctx, q)
		default:
			page, err = admin.Users(ctx, q)
		}
		if err != nil {
			return err
		}
		users := append(append(append([]domain.User(nil), page.Users...), page.Learners...), page.Creators...)
		printUsers(e, users)
		return nil
	default:
		return badUsage("unknown admin subcommand %q", sub)
	}
}

func printUsers(e *cmdEnv, users []domain.User) {
	w := e.table()
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tAPPLICATION")
	for _, u := range users {
		app := "-"
		if u.CreatorApplication != nil && u.CreatorApplication.Status != "" {
			app = utils.Capitalize(string(u.CreatorApplication.Status))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, text(u.Name), u.Email, u.Role, app)
	}
}

func printJSON(e *cmdEnv, v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// operations

func cmdDoctor(ctx context.Context, e *cmdEnv, _ []string) error {
	cfg := e.app.Config
	w := e.table()
	row(w, "environment", cfg.Environment)
	row(w, "api", cfg.API.BaseURL)
	row(w, "storage", e.app.StorageBackend())
	row(w, "storage dir", cfg.Storage.Dir)
	row(w, "backup dir", cfg.Backup.Dir)
	row(w, "session", e.app.Sessions.Snapshot().Status.String())
	w.Flush()

	status := e.app.Health.CheckAll(ctx)
	e.printf("\n")
	w = e.table()
	for _, c := range status.Checks {
		state := "ok"
		if !c.Healthy {
			state = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, state, utils.FormatDuration(c.Took), c.Detail)
	}
	w.Flush()

	if status.Status != "healthy" {
		return fmt.Errorf("status %s", status.Status)
	}
	return nil
}

func cmdAgent(ctx context.Context, e *cmdEnv, _ []string) error {
	cfg := e.app.Config
	if cfg.Backup.Interval <= 0 && !cfg.Monitoring.PrometheusEnabled {
		return errors.New("nothing to run: set backup.interval or monitoring.prometheus_enabled")
	}
	scheduler, _, err := e.app.Backups()
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.app.ServeMetrics(ctx)
	})
	g.Go(func() error {
		scheduler.Start(ctx)
		return nil
	})
	e.printf("agent running, interrupt to stop\n")
	return g.Wait()
}

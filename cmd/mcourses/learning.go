package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"microcourses/internal/core/domain"
	"microcourses/internal/core/services"
	"microcourses/pkg/utils"
	"microcourses/pkg/validation"
)

func courseArg(args []string) (domain.CourseID, error) {
	if len(args) == 0 {
		return "", badUsage("a course id is required")
	}
	if err := validation.ValidateID(args[0], "course id"); err != nil {
		return "", err
	}
	return domain.CourseID(args[0]), nil
}

func cmdCourses(ctx context.Context, e *cmdEnv, args []string) error {
	var q domain.CourseQuery
	if _, err := flags("courses", args, func(fs *flag.FlagSet) {
		fs.StringVar(&q.Search, "search", "", "")
		fs.StringVar(&q.Category, "category", "", "")
		fs.StringVar(&q.Level, "level", "", "")
		fs.StringVar(&q.Sort, "sort", "", "")
		fs.StringVar(&q.MinPrice, "min-price", "", "")
		fs.StringVar(&q.MaxPrice, "max-price", "", "")
		fs.IntVar(&q.Page, "page", 1, "")
		fs.IntVar(&q.Limit, "limit", domain.DefaultPageSize, "")
	}); err != nil {
		return err
	}

	page, err := e.app.Catalog.Courses(ctx, q)
	if err != nil {
		return err
	}
	printCourses(e, page.Courses)
	e.printf("page %d of %d, %d courses\n", page.Pagination.Page, page.Pagination.Pages, page.Pagination.Total)
	return nil
}

func printCourses(e *cmdEnv, courses []domain.Course) {
	w := e.table()
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTITLE\tLEVEL\tPRICE\tRATING")
	for _, c := range courses {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f (%d)\n", c.ID, text(c.Title), c.Level, price(c.Price), c.Rating.Average, c.Rating.Count)
	}
}

func price(p float64) string {
	if p == 0 {
		return "free"
	}
	return fmt.Sprintf("$%.2f", p)
}

func cmdCourse(ctx context.Context, e *cmdEnv, args []string) error {
	id, err := courseArg(args)
	if err != nil {
		return err
	}
	c, err := e.app.Catalog.Course(ctx, id)
	if err != nil {
		return err
	}

	w := e.table()
	row(w, "title", c.Title)
	row(w, "category", c.Category)
	row(w, "level", c.Level)
	row(w, "price", price(c.Price))
	if c.Creator != nil {
		row(w, "creator", c.Creator.Name)
	}
	row(w, "enrolled", strconv.Itoa(c.EnrollmentCount))
	if c.ShortDescription != "" {
		row(w, "summary", c.ShortDescription)
	}
	w.Flush()

	if len(c.Lessons) > 0 {
		e.printf("\n")
		w = e.table()
		for _, l := range c.Lessons {
			fmt.Fprintf(w, "%d\t%s\t%s\n", l.Order, l.Title, clock(l.Duration))
		}
		w.Flush()
	}

	if e.app.Sessions.Snapshot().Role() == domain.RoleLearner {
		enrolled, err := e.app.Catalog.IsEnrolled(ctx, id)
		if err == nil && enrolled {
			e.printf("\nyou are enrolled\n")
		}
	}
	return nil
}

func cmdEnroll(ctx context.Context, e *cmdEnv, args []string) error {
	id, err := courseArg(args)
	if err != nil {
		return err
	}
	if err := e.app.Catalog.Enroll(ctx, id); err != nil {
		return err
	}
	e.printf("enrolled in %s\n", id)
	return nil
}

func cmdRate(ctx context.Context, e *cmdEnv, args []string) error {
	if len(args) != 2 {
		return badUsage("a course id and a rating are required")
	}
	id, err := courseArg(args[:1])
	if err != nil {
		return err
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return badUsage("rating must be a number from 1 to 5")
	}
	if err := e.app.Client.Courses.Rate(ctx, id, rating); err != nil {
		return err
	}
	e.app.Catalog.Invalidate()
	e.printf("rated %s %d/5\n", id, rating)
	return nil
}

func cmdMyCourses(ctx context.Context, e *cmdEnv, _ []string) error {
	enrollments, err := e.app.Catalog.Enrolled(ctx)
	if err != nil {
		return err
	}
	w := e.table()
	defer w.Flush()
	fmt.Fprintln(w, "ID\tTITLE\tPROGRESS\tCERTIFICATE")
	for _, en := range enrollments {
		cert := "-"
		if en.CertificateIssued {
			cert = "issued"
		}
		fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\n", en.Course.ID, text(en.Course.Title), en.Progress, cert)
	}
	return nil
}

func cmdRecommend(ctx context.Context, e *cmdEnv, args []string) error {
	limit := 6
	if _, err := flags("recommend", args, func(fs *flag.FlagSet) {
		fs.IntVar(&limit, "limit", limit, "")
	}); err != nil {
		return err
	}
	courses, err := e.app.Catalog.Recommendations(ctx, limit)
	if err != nil {
		return err
	}
	printCourses(e, courses)
	return nil
}

func cmdStats(ctx context.Context, e *cmdEnv, _ []string) error {
	stats, err := e.app.Client.Learner.Stats(ctx)
	if err != nil {
		return err
	}
	w := e.table()
	defer w.Flush()
	row(w, "enrolled", strconv.Itoa(stats.TotalEnrolled))
	row(w, "completed", strconv.Itoa(stats.CompletedCourses))
	row(w, "learning time", clock(stats.TotalLearningTime))
	row(w, "average progress", fmt.Sprintf("%.0f%%", stats.AverageProgress))
	return nil
}

func cmdLearn(ctx context.Context, e *cmdEnv, args []string) error {
	var (
		lessonID string
		watch    float64
		step     = 5.0
		ended    bool
		manual   bool
	)
	pos, err := flags("learn", args, func(fs *flag.FlagSet) {
		fs.StringVar(&lessonID, "lesson", "", "")
		fs.Float64Var(&watch, "watch", 0, "")
		fs.Float64Var(&step, "step", step, "")
		fs.BoolVar(&ended, "end", false, "")
		fs.BoolVar(&manual, "complete", false, "")
	})
	if err != nil {
		return err
	}
	courseID, err := courseArg(pos)
	if err != nil {
		return err
	}
	if step <= 0 {
		return badUsage("-step must be positive")
	}

	player := e.app.Player(courseID)
	defer player.Close()
	if err := player.Open(ctx); err != nil {
		return err
	}
	if lessonID != "" {
		if _, err := player.Select(domain.LessonID(lessonID)); err != nil {
			return err
		}
	}

	if watch > 0 {
		if err := simulate(ctx, e, player, watch, step); err != nil {
			return err
		}
	}
	if ended {
		lesson, _ := player.Current()
		done, err := player.Ended(ctx, lesson.ID)
		if err != nil {
			return err
		}
		if done {
			e.printf("completed %s\n", lesson.Title)
		}
	}
	if manual {
		lesson, _ := player.Current()
		done, err := player.MarkComplete(ctx)
		switch {
		case errors.Is(err, domain.ErrAlreadyCompleted):
			e.printf("%s is already completed\n", lesson.Title)
		case err != nil:
			return err
		case done:
			e.printf("completed %s\n", lesson.Title)
		}
	}

	printLessons(e, player)
	return nil
}

// playback is the part of the lesson player the simulation drives.
type playback interface {
	Current() (domain.Lesson, bool)
	StartPosition() float64
	TimeUpdate(ctx context.Context, lessonID domain.LessonID, position, duration float64) (bool, error)
}

// simulate feeds time updates for the current lesson as a video element
// would, starting at the resume position.
func simulate(ctx context.Context, e *cmdEnv, p playback, seconds, step float64) error {
	lesson, ok := p.Current()
	if !ok {
		return domain.ErrLessonNotFound
	}
	if lesson.Duration <= 0 {
		return fmt.Errorf("lesson %s has no known duration", lesson.ID)
	}

	at := p.StartPosition()
	end := math.Min(at+seconds, lesson.Duration)
	for {
		at = math.Min(at+step, end)
		done, err := p.TimeUpdate(ctx, lesson.ID, at, lesson.Duration)
		if err != nil {
			return err
		}
		if done {
			e.printf("completed %s\n", lesson.Title)
			return nil
		}
		if at >= end {
			e.printf("watched %s to %s of %s\n", lesson.Title, clock(at), clock(lesson.Duration))
			return nil
		}
	}
}

func printLessons(e *cmdEnv, p *services.LessonPlayer) {
	current, _ := p.Current()
	progress := p.Progress()
	tracker := p.Tracker()

	w := e.table()
	fmt.Fprintln(w, "\tLESSON\tSTATE\tWATCHED\tLENGTH")
	for _, l := range p.Lessons() {
		marker := ""
		if l.ID == current.ID {
			marker = ">"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n",
			marker, text(l.Title), tracker.State(l.ID, &progress), tracker.PercentWatched(l.ID), clock(l.Duration))
	}
	w.Flush()

	e.printf("course progress %.0f%%", progress.Progress)
	if progress.CertificateIssued {
		e.printf(", certificate issued")
	}
	e.printf("\n")
	if start := p.StartPosition(); start > 0 {
		e.printf("resume %s at %s\n", current.Title, clock(start))
	}
}

func clock(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return utils.FormatClock(seconds)
}

// text makes a backend string safe for one table cell.
func text(s string) string {
	return utils.TruncateString(utils.SanitizeString(s), 48)
}

func cmdCertificate(ctx context.Context, e *cmdEnv, args []string) error {
	var out string
	pos, err := flags("certificate", args, func(fs *flag.FlagSet) {
		fs.StringVar(&out, "o", "", "")
	})
	if err != nil {
		return err
	}
	courseID, err := courseArg(pos)
	if err != nil {
		return err
	}
	if out == "" {
		return badUsage("-o is required")
	}

	pdf, err := e.app.Client.Learner.Certificate(ctx, courseID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	e.printf("certificate saved to %s\n", out)
	return nil
}

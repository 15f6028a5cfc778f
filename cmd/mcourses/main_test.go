package main

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"microcourses/internal/core/domain"
	"microcourses/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t       *testing.T
	backend *testutil.Backend
	storage string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	return &cli{t: t, backend: testutil.NewBackend(t), storage: t.TempDir()}
}

// run executes one process worth of mcourses against the fake backend.
func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-api", c.backend.URL(), "-storage", c.storage}, args...)
	code := run(context.Background(), full, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) login(email string) {
	c.t.Helper()
	code, out, errOut := c.run("login", "-email", email, "-password", "secret1")
	require.Equal(c.t, exitOK, code, errOut)
	require.Contains(c.t, out, "signed in as")
}

func TestRun_UsageErrors(t *testing.T) {
	c := newCLI(t)

	code, _, _ := c.run()
	assert.Equal(t, exitUsage, code)

	code, _, errOut := c.run("teleport")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, `unknown command "teleport"`)

	code, _, errOut = c.run("course")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, errOut, "a course id is required")
}

func TestRun_LoginPersistsAcrossRuns(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("Grace", "grace@example.com", "secret1", domain.RoleCreator)

	code, out, _ := c.run("whoami")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "anonymous")

	code, out, errOut := c.run("login", "-email", "grace@example.com", "-password", "secret1")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "home: "+domain.PathCreatorHome)

	code, out, _ = c.run("whoami")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "grace@example.com")
	assert.Contains(t, out, "creator")

	code, _, errOut = c.run("login", "-email", "grace@example.com", "-password", "secret1")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, errAlreadySignedIn.Error())

	code, out, _ = c.run("logout")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "signed out")

	code, out, _ = c.run("whoami")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "anonymous")
}

func TestRun_LoginFailureMessage(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("Grace", "grace@example.com", "secret1", domain.RoleLearner)

	code, _, errOut := c.run("login", "-email", "grace@example.com", "-password", "wrong")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "Invalid email or password")
}

func TestRun_GateBlocksCommands(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("Lin", "lin@example.com", "secret1", domain.RoleLearner)

	code, _, errOut := c.run("my-courses")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, errLoginRequired.Error())
	assert.Zero(t, c.backend.Calls("GET", "/learner/courses"))

	c.login("lin@example.com")

	code, _, errOut = c.run("admin", "dashboard")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, errNotPermitted.Error())
	assert.Zero(t, c.backend.Calls("GET", "/admin/dashboard"))

	code, out, _ := c.run("open", "/admin/users")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "redirect")
	assert.Contains(t, out, "admin-users")
}

func TestRun_LearnCompletesLesson(t *testing.T) {
	c := newCLI(t)
	user := c.backend.AddUser("Lin", "lin@example.com", "secret1", domain.RoleLearner)
	course := c.backend.AddCourse(domain.Course{Title: "Go in Practice"},
		domain.Lesson{ID: "L1", Title: "Setup", Duration: 30},
		domain.Lesson{ID: "L2", Title: "Types", Duration: 60},
	)
	c.backend.Enroll(user.ID, course.ID)
	c.login("lin@example.com")

	code, out, errOut := c.run("learn", string(course.ID), "-watch", "20", "-step", "10")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "watched Setup to 0:20")
	assert.Zero(t, c.backend.Calls("POST", "/learner/courses/"+string(course.ID)+"/lessons/L1/complete"))

	code, out, errOut = c.run("learn", string(course.ID), "-watch", "60", "-step", "5")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "completed Setup")
	assert.Equal(t, 1, c.backend.Calls("POST", "/learner/courses/"+string(course.ID)+"/lessons/L1/complete"))
	assert.ElementsMatch(t, []domain.LessonID{"L1"}, c.backend.Completed(user.ID, course.ID))

	code, out, _ = c.run("progress", string(course.ID))
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "L1")
	assert.Contains(t, out, "100%")
}

func TestRun_ProgressExportImportAndBackups(t *testing.T) {
	c := newCLI(t)
	user := c.backend.AddUser("Lin", "lin@example.com", "secret1", domain.RoleLearner)
	course := c.backend.AddCourse(domain.Course{ID: "go101", Title: "Go 101"},
		domain.Lesson{ID: "L1", Title: "Intro", Duration: 100},
	)
	c.backend.Enroll(user.ID, course.ID)
	c.login("lin@example.com")

	code, _, errOut := c.run("learn", "go101", "-watch", "40", "-step", "40")
	require.Equal(t, exitOK, code, errOut)

	file := filepath.Join(t.TempDir(), "go101.json")
	code, _, errOut = c.run("progress", "export", "go101", "-o", file)
	require.Equal(t, exitOK, code, errOut)
	blob, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"currentTime":40`)

	code, _, errOut = c.run("progress", "import", "other", file)
	require.Equal(t, exitOK, code, errOut)
	code, out, _ := c.run("progress", "other")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "40%")

	code, _, _ = c.run("progress", "restore")
	assert.Equal(t, exitError, code)

	code, out, errOut = c.run("progress", "backup")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "progress-")

	code, out, _ = c.run("progress", "backups")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "progress-")

	code, out, errOut = c.run("progress", "restore", "-overwrite")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "restored 2 courses")
}

func TestRun_RateValidatesBeforeSending(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("Lin", "lin@example.com", "secret1", domain.RoleLearner)
	course := c.backend.AddCourse(domain.Course{ID: "go101", Title: "Go 101"})
	c.login("lin@example.com")

	code, _, errOut := c.run("rate", "go101", "9")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "rating must be between 1 and 5")
	assert.Zero(t, c.backend.Calls("POST", "/courses/go101/rate"))

	code, out, errOut := c.run("rate", string(course.ID), "4")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "rated go101 4/5")
	assert.Equal(t, 1, c.backend.Calls("POST", "/courses/go101/rate"))
}

func TestRun_AdminBlocksUser(t *testing.T) {
	c := newCLI(t)
	c.backend.AddUser("Ada", "ada@example.com", "secret1", domain.RoleAdmin)
	lin := c.backend.AddUser("Lin", "lin@example.com", "secret1", domain.RoleLearner)
	c.login("ada@example.com")

	code, _, _ := c.run("admin", "block", string(lin.ID))
	assert.Equal(t, exitUsage, code)

	code, out, errOut := c.run("admin", "block", string(lin.ID), "-reason", "spam")
	require.Equal(t, exitOK, code, errOut)
	assert.Contains(t, out, "blocked")
	u, _ := c.backend.User(lin.ID)
	assert.True(t, u.IsBlocked)

	code, _, errOut = c.run("admin", "unblock", string(lin.ID))
	require.Equal(t, exitOK, code, errOut)
	u, _ = c.backend.User(lin.ID)
	assert.False(t, u.IsBlocked)
}

func TestRun_DoctorReportsUnreachableBackend(t *testing.T) {
	c := newCLI(t)
	code, out, _ := c.run("doctor")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, "storage:file")

	var stdout, stderr bytes.Buffer
	code = run(context.Background(), []string{"-api", "http://127.0.0.1:1/api", "-storage", c.storage, "doctor"},
		strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitError, code)
	assert.Contains(t, stdout.String(), "FAIL")
}

func TestLoadConfig_SearchPaths(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("MICROCOURSES_STORAGE_BACKEND", "")

	cfg, err := loadConfig(globalFlags{})
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage.Backend)

	require.NoError(t, os.WriteFile("config.yaml", []byte("storage:\n  backend: memory\n"), 0o600))
	cfg, err = loadConfig(globalFlags{})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)

	require.NoError(t, os.WriteFile("config.yaml", []byte("storage: [unclosed\n"), 0o600))
	_, err = loadConfig(globalFlags{})
	assert.Error(t, err)
}

func TestRun_MalformedConfigFails(t *testing.T) {
	c := newCLI(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: {base_url: [\n"), 0o600))

	code, _, errOut := c.run("-config", path, "doctor")
	assert.Equal(t, exitError, code)
	assert.Contains(t, errOut, "unmarshal config yaml")
}

func TestFlags_PositionalAnywhere(t *testing.T) {
	var lesson string
	pos, err := flags("learn", []string{"c1", "-lesson", "L2", "extra"}, func(fs *flag.FlagSet) {
		fs.StringVar(&lesson, "lesson", "", "")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "extra"}, pos)
	assert.Equal(t, "L2", lesson)
}

func TestClock(t *testing.T) {
	assert.Equal(t, "-", clock(0))
	assert.Equal(t, "0:05", clock(5))
	assert.Equal(t, "2:05", clock(125))
	assert.Equal(t, "1:00:01", clock(3601))
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/taskboard/internal/app"
	"github.com/and161185/taskboard/internal/board"
	"github.com/and161185/taskboard/internal/client"
	"github.com/and161185/taskboard/internal/model"
	"github.com/and161185/taskboard/internal/repository/memory"
	"github.com/and161185/taskboard/internal/server/httpapi"
	"github.com/and161185/taskboard/internal/storage"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "taskboard")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	_ = withTmpConfig(t)
	got := cfgDir()
	base := os.Getenv("XDG_CONFIG_HOME") + "/taskboard"
	if got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error without token file")
	}

	if err := saveToken(tokenFile{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour), UserID: 7}); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken()
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken=%q,%v", tok, err)
	}
	if fi, err := os.Stat(tokenPath()); err != nil || fi.Mode().Perm() != 0o600 {
		t.Fatalf("token file mode: %v %v", fi, err)
	}

	if err := saveToken(tokenFile{AccessToken: "old", ExpiresAt: time.Now().Add(-time.Minute)}); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error for expired token")
	}

	if err := removeToken(); err != nil {
		t.Fatalf("removeToken: %v", err)
	}
	if err := removeToken(); err != nil {
		t.Fatalf("removeToken twice: %v", err)
	}
}

func Test_tokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("whatever"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	fallback := time.Unix(1, 0)
	if got := tokenExpiry(tok, fallback); !got.Equal(exp) {
		t.Fatalf("tokenExpiry=%v, want %v", got, exp)
	}
	if got := tokenExpiry("not-a-jwt", fallback); !got.Equal(fallback) {
		t.Fatalf("tokenExpiry fallback=%v", got)
	}
}

func Test_printJSON(t *testing.T) {
	var buf bytes.Buffer
	printJSON(&buf, map[string]int{"a": 1})
	if !strings.Contains(buf.String(), "\"a\": 1") {
		t.Fatalf("printJSON unexpected: %q", buf.String())
	}
}

func Test_renderBoard(t *testing.T) {
	snap := board.Snapshot{
		ProjectID: 1,
		Columns: []model.Column{
			{ID: 10, ProjectID: 1, Title: "Todo", OrderIndex: 0},
			{ID: 11, ProjectID: 1, Title: "Done", OrderIndex: 1},
		},
		Tasks: []model.Task{
			{ID: 1, ColumnID: 10, Title: "Write", Priority: 3, OrderIndex: 0},
			{ID: 2, ColumnID: 10, Title: "Ship", Priority: 5, OrderIndex: 1, AttachmentCount: 2},
		},
	}
	var buf bytes.Buffer
	renderBoard(&buf, snap)
	want := "== Todo (#10, 2) ==\n" +
		"  #1 Write\n" +
		"  #2 Ship [p5, 2 file(s)]\n" +
		"== Done (#11, 0) ==\n"
	if buf.String() != want {
		t.Fatalf("renderBoard:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func Test_run_Usage(t *testing.T) {
	c := &cli{out: &bytes.Buffer{}, log: zap.NewNop()}
	if err := run(context.Background(), c, nil); !errors.Is(err, errUsage) {
		t.Fatalf("run(nil)=%v", err)
	}
	var buf bytes.Buffer
	c.out = &buf
	if err := run(context.Background(), c, []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "taskboard dev") {
		t.Fatalf("version output: %q", buf.String())
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := zaptest.NewLogger(t)
	blobs, err := storage.NewDisk(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	svc := app.Services(app.MemoryRepos(memory.New()), app.Deps{
		SignKey: []byte("k"), AccessTTL: time.Hour, MaxBatch: 100, Blobs: blobs, Log: log,
	})
	srv := httptest.NewServer(httpapi.New(svc, []byte("k"), log).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func Test_run_BoardFlow(t *testing.T) {
	_ = withTmpConfig(t)
	srv := newTestServer(t)
	ctx := context.Background()
	var out bytes.Buffer
	c := &cli{addr: srv.URL, out: &out, log: zaptest.NewLogger(t)}

	exec := func(args ...string) string {
		t.Helper()
		out.Reset()
		if err := run(ctx, c, args); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	if err := run(ctx, c, []string{"projects"}); err == nil {
		t.Fatalf("projects without login should fail")
	}
	exec("register", "-u", "alice", "-p", "secret-pass")
	exec("login", "-u", "alice", "-p", "secret-pass")

	var p model.Project
	if err := json.Unmarshal([]byte(exec("new-project", "-name", "Launch")), &p); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	pid := fmt.Sprint(p.ID)

	tok, err := loadToken()
	if err != nil {
		t.Fatalf("loadToken: %v", err)
	}
	api := client.New(srv.URL, client.WithToken(tok))
	cols, err := api.Columns(ctx, p.ID)
	if err != nil || len(cols) != 3 {
		t.Fatalf("columns=%v,%v", cols, err)
	}
	todo, done := fmt.Sprint(cols[0].ID), fmt.Sprint(cols[2].ID)

	addTask := func(title string) string {
		var tk model.Task
		if err := json.Unmarshal([]byte(exec("add-task", "-project", pid, "-column", todo, "-title", title)), &tk); err != nil {
			t.Fatalf("decode task: %v", err)
		}
		return fmt.Sprint(tk.ID)
	}
	first := addTask("Write spec")
	second := addTask("Review")

	got := exec("move-task", "-project", pid, "-task", second, "-onto-task", first)
	if !strings.Contains(got, "2 changed") {
		t.Fatalf("move-task output: %q", got)
	}
	if strings.Index(got, "Review") > strings.Index(got, "Write spec") {
		t.Fatalf("Review should now lead the column:\n%s", got)
	}

	exec("move-task", "-project", pid, "-task", first, "-onto-column", done)
	tasks, err := api.Tasks(ctx, p.ID)
	if err != nil {
		t.Fatalf("tasks: %v", err)
	}
	for _, tk := range tasks {
		if fmt.Sprint(tk.ID) == first && fmt.Sprint(tk.ColumnID) != done {
			t.Fatalf("task %s still in column %d", first, tk.ColumnID)
		}
	}

	got = exec("move-task", "-project", pid, "-task", first, "-onto-column", done)
	if !strings.Contains(got, "nothing to do") {
		t.Fatalf("repeat drop should be a no-op: %q", got)
	}

	exec("set-priority", "-project", pid, "-task", first, "-p", "5")
	if err := run(ctx, c, []string{"set-priority", "-project", pid, "-task", first, "-p", "9"}); err == nil {
		t.Fatalf("priority 9 should be rejected")
	}

	src := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	var a model.Attachment
	if err := json.Unmarshal([]byte(exec("attach", "-project", pid, "-task", first, "-file", src)), &a); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}
	dst := filepath.Join(t.TempDir(), "copy.txt")
	exec("download", "-attachment", fmt.Sprint(a.ID), "-out", dst)
	if b, err := os.ReadFile(dst); err != nil || string(b) != "hello" {
		t.Fatalf("download=%q,%v", b, err)
	}

	got = exec("board", "-project", pid)
	if !strings.Contains(got, "Write spec [p5, 1 file(s)]") {
		t.Fatalf("board output:\n%s", got)
	}

	exec("logout")
	if _, err := loadToken(); err == nil {
		t.Fatalf("token should be gone after logout")
	}
}

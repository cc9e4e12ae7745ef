// Command taskboard is a CLI client for the board server. Moves are
// replayed as drag gestures over a synthetic board layout.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/taskboard/internal/board"
	"github.com/and161185/taskboard/internal/client"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      int64     `json:"user_id"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "taskboard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "taskboard")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", errors.New("not logged in (run login)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

func removeToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// tokenExpiry reads exp from an access token without verifying it; the
// server does that on every call.
func tokenExpiry(tok string, fallback time.Time) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return fallback
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func usage() {
	fmt.Fprintf(os.Stderr, `taskboard CLI
Usage:
  taskboard [-addr URL] [-v] <cmd> [args]

Commands:
  version
  register     -u <username> -p <password>
  login        -u <username> -p <password>          (saves token)
  logout
  me
  projects
  new-project  -name <name> [-desc <text>]
  rename-project -project <id> -name <name>
  rm-project   -project <id>
  board        -project <id>
  add-column   -project <id> -title <title> [-color #rrggbb]
  add-task     -project <id> -column <id> -title <title> [-desc <text>] [-priority 1..5]
  set-priority -project <id> -task <id> -p <1..5>
  rm-task      -project <id> -task <id>
  move-task    -project <id> -task <id> (-onto-task <id> | -onto-column <id>)
  move-column  -project <id> -column <id> -onto <id>
  move-project -project <id> -onto <id>
  attach       -project <id> -task <id> -file <path>
  download     -attachment <id> -out <path>
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses global flags and dispatches one subcommand.
func main() {
	addr := flag.String("addr", envOr("TASKBOARD_ADDR", "http://localhost:8080"), "server base URL")
	verbose := flag.Bool("v", false, "log drag resolution to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	log := zap.NewNop()
	if *verbose {
		log, _ = zap.NewDevelopment()
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, &cli{addr: *addr, out: os.Stdout, log: log}, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			usage()
		}
		fail(err)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

var errUsage = errors.New("usage")

// boardCmds are dispatched to runBoard.
var boardCmds = map[string]bool{
	"projects": true, "new-project": true, "rename-project": true, "rm-project": true,
	"board": true, "add-column": true, "add-task": true, "set-priority": true, "rm-task": true,
	"move-task": true, "move-column": true, "move-project": true,
	"attach": true, "download": true,
}

type cli struct {
	addr string
	out  io.Writer
	log  *zap.Logger
}

func (c *cli) anon() *client.Client { return client.New(c.addr) }

func (c *cli) authed() (*client.Client, error) {
	tok, err := loadToken()
	if err != nil {
		return nil, err
	}
	return client.New(c.addr, client.WithToken(tok)), nil
}

// run executes one subcommand; args[0] is its name.
func run(ctx context.Context, c *cli, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version":
		fmt.Fprintf(c.out, "taskboard %s (%s)\n", version, buildDate)
		return nil

	case "register", "login":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *u == "" || *p == "" {
			return errors.New("need -u and -p")
		}
		api := c.anon()
		if cmd == "register" {
			id, err := api.Register(ctx, *u, *p)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, id)
			return nil
		}
		s, err := api.Login(ctx, *u, *p)
		if err != nil {
			return err
		}
		exp := tokenExpiry(s.AccessToken, s.ExpiresAt)
		if err := saveToken(tokenFile{AccessToken: s.AccessToken, ExpiresAt: exp, UserID: s.UserID}); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
		return nil

	case "logout":
		if err := removeToken(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "ok")
		return nil

	case "me":
		api, err := c.authed()
		if err != nil {
			return err
		}
		u, err := api.Me(ctx)
		if err != nil {
			return err
		}
		printJSON(c.out, u)
		return nil
	}

	if !boardCmds[cmd] {
		return errUsage
	}
	api, err := c.authed()
	if err != nil {
		return err
	}
	st := board.New(api)
	defer st.Close()
	return runBoard(ctx, c, api, st, cmd, rest)
}

// ---- helpers ----

func fail(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", apiErr.Status, apiErr.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

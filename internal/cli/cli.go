// Package cli implements authctl, the administration command line over the
// identity directory and the password provider.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/flagx"
	"github.com/dmitrijs2005/authfacade/internal/server"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/password"
	"github.com/dmitrijs2005/authfacade/internal/server/config"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/google/uuid"
)

// ErrNoMatch is returned by password verify and login when the credentials
// do not match.
var ErrNoMatch = errors.New("credentials do not match")

// ErrUsage is returned for unknown commands or missing arguments.
var ErrUsage = errors.New("usage")

const usage = `usage: authctl [flags] <command>

commands:
  migrate
  user create [name]
  user destroy <id>
  user rename <id> <name>
  group create
  group destroy <id> [--force]
  group add <group-id> <user-id>
  group remove <group-id> <user-id>
  password set <id>
  password verify <name|id>
  password login <name|id>
  password disable <id>
  password info <id>
  providers`

type App struct {
	srv    *server.App
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(srv *server.App, in io.Reader, out io.Writer) *App {
	return &App{srv: srv, reader: bufio.NewReader(in), out: out}
}

// Run executes the command found in args. Configuration flags are skipped.
// Every mutation is performed as the System user.
func (a *App) Run(ctx context.Context, args []string) error {
	words := flagx.Positional(args, config.FlagsWithValues)
	force := flagx.HasFlag(args, "--force") || flagx.HasFlag(args, "-force")

	if len(words) == 0 {
		fmt.Fprintln(a.out, usage)
		return ErrUsage
	}

	var err error
	switch words[0] {
	case "help":
		fmt.Fprintln(a.out, usage)
		return nil
	case "migrate":
		err = a.migrate(ctx)
	case "providers":
		for _, n := range a.srv.Registry.Names() {
			fmt.Fprintln(a.out, n)
		}
	case "user":
		err = a.user(ctx, words[1:])
	case "group":
		err = a.group(ctx, words[1:], force)
	case "password":
		err = a.password(ctx, words[1:])
	default:
		err = fmt.Errorf("%w: unknown command %q", ErrUsage, words[0])
	}
	if errors.Is(err, ErrUsage) {
		fmt.Fprintln(a.out, usage)
	}
	return err
}

func (a *App) migrate(ctx context.Context) error {
	if err := a.srv.Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Schema is up to date")
	return nil
}

func need(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: missing arguments", ErrUsage)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", common.ErrorInvalidPayload, s)
	}
	return id, nil
}

func (a *App) user(ctx context.Context, args []string) error {
	if err := need(args, 1); err != nil {
		return err
	}
	d := a.srv.Directory

	switch args[0] {
	case "create":
		name := uuid.NewString()
		if len(args) > 1 {
			name = args[1]
		}
		id, err := d.CreateUser(ctx, models.SystemID, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "User %s created with id %d\n", name, id)

	case "destroy":
		if err := need(args, 2); err != nil {
			return err
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := d.DestroyUser(ctx, models.SystemID, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "User %d destroyed\n", id)

	case "rename":
		if err := need(args, 3); err != nil {
			return err
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		ok, err := d.UserNameSet(ctx, models.SystemID, id, args[2])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: name %q is taken", common.ErrorConflict, args[2])
		}
		fmt.Fprintf(a.out, "User %d renamed to %s\n", id, args[2])

	default:
		return fmt.Errorf("%w: unknown user command %q", ErrUsage, args[0])
	}
	return nil
}

func (a *App) group(ctx context.Context, args []string, force bool) error {
	if err := need(args, 1); err != nil {
		return err
	}
	d := a.srv.Directory

	switch args[0] {
	case "create":
		id, err := d.CreateGroup(ctx, models.SystemID)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Group created with id %d\n", id)

	case "destroy":
		if err := need(args, 2); err != nil {
			return err
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := d.DestroyGroup(ctx, models.SystemID, id, force); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Group %d destroyed\n", id)

	case "add", "remove":
		if err := need(args, 3); err != nil {
			return err
		}
		gid, err := parseID(args[1])
		if err != nil {
			return err
		}
		uid, err := parseID(args[2])
		if err != nil {
			return err
		}
		if args[0] == "add" {
			err = d.AddUser(ctx, models.SystemID, gid, uid)
		} else {
			err = d.RemoveUser(ctx, models.SystemID, gid, uid)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Group %d updated\n", gid)

	default:
		return fmt.Errorf("%w: unknown group command %q", ErrUsage, args[0])
	}
	return nil
}

func (a *App) password(ctx context.Context, args []string) error {
	if err := need(args, 2); err != nil {
		return err
	}
	p := a.srv.Passwords

	switch args[0] {
	case "set":
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		pw, err := GetNewPassword(a.reader, a.out)
		if err != nil {
			return err
		}
		res, err := p.SetPassword(ctx, models.SystemID, id, pw)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Password for user %d: %s\n", id, res)

	case "verify", "login":
		pw, err := GetPassword(a.reader, "Password", a.out)
		if err != nil {
			return err
		}
		actualLogin := args[0] == "login"

		var id int64
		if n, perr := strconv.ParseInt(args[1], 10, 64); perr == nil {
			id, err = p.VerifyByID(ctx, n, pw, actualLogin)
		} else {
			id, err = p.VerifyByName(ctx, args[1], pw, actualLogin)
		}
		if err != nil {
			return err
		}
		if id == 0 {
			return ErrNoMatch
		}
		fmt.Fprintf(a.out, "OK, user id %d\n", id)

	case "disable":
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := p.DestroyPasswordUser(ctx, models.SystemID, id); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Password login disabled for user %d\n", id)

	case "info":
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		info, err := p.Info(ctx, id)
		if err != nil {
			return err
		}
		a.printInfo(info)

	default:
		return fmt.Errorf("%w: unknown password command %q", ErrUsage, args[0])
	}
	return nil
}

func (a *App) printInfo(info *password.CredentialInfo) {
	login := "never"
	if info.LastLoginTime != nil {
		login = info.LastLoginTime.UTC().Format(time.RFC3339Nano)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "user id:       %d\n", info.UserID)
	fmt.Fprintf(&b, "iterations:    %d\n", info.Iterations)
	fmt.Fprintf(&b, "version:       %d\n", info.Version)
	fmt.Fprintf(&b, "needs rehash:  %t\n", info.NeedsRehash)
	fmt.Fprintf(&b, "last login:    %s\n", login)
	fmt.Fprintf(&b, "last modified: %s\n", info.LastModified.UTC().Format(time.RFC3339Nano))
	fmt.Fprint(a.out, b.String())
}

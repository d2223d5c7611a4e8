package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/lhajoosten/trackerctl/internal/api"
	"github.com/lhajoosten/trackerctl/internal/config"
	"github.com/lhajoosten/trackerctl/internal/obs"
	"github.com/lhajoosten/trackerctl/internal/rbac"
	"github.com/lhajoosten/trackerctl/internal/session"
	"github.com/lhajoosten/trackerctl/internal/storage"
)

// Permissions consulted before issuing admin requests, so an operator gets a
// fast local "permission denied" instead of a server round-trip.
const (
	permUsersRead  = "users:read"
	permUsersWrite = "users:write"
	permRolesRead  = "roles:read"
	permRolesWrite = "roles:write"
	permPermsRead  = "permissions:read"
	permPermsWrite = "permissions:write"
)

type app struct {
	cfg    *config.Config
	log    *zap.Logger
	client *api.Client
	mgr    *session.Manager
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	obs.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := obs.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	statePath := cfg.Storage.Path
	if statePath == "" {
		statePath, err = storage.DefaultPath()
		if err != nil {
			log.Fatalf("resolve state path: %v", err)
		}
	}

	mode := session.ModeBearer
	if cfg.AuthMode == config.AuthModeCookie {
		mode = session.ModeCookie
	}
	mgr := session.NewManager(mode, storage.NewFileStore(statePath),
		session.WithLogger(logger),
		session.WithRedirect(func() {
			fmt.Fprintln(os.Stderr, "session expired; run `trackerctl login` to sign in again")
		}),
	)

	client, err := api.New(cfg.BaseURL, mgr,
		api.WithLogger(logger),
		api.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		api.WithRateLimit(cfg.Rate.PerSecond, cfg.Rate.Burst),
		api.WithRefreshLeeway(cfg.RefreshLeeway),
	)
	if err != nil {
		log.Fatalf("init client: %v", err)
	}

	if err := mgr.Restore(); err != nil {
		logger.Warn("could not restore saved session", zap.Error(err))
	}

	a := &app{cfg: cfg, log: logger, client: client, mgr: mgr}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Timeout)
	defer cancel()

	switch os.Args[1] {
	case "login":
		err = a.runLogin(ctx, os.Args[2:])
	case "logout":
		err = a.client.Auth.Logout(ctx)
	case "register":
		err = a.runRegister(ctx, os.Args[2:])
	case "whoami":
		err = a.runWhoami(ctx, os.Args[2:])
	case "users":
		err = a.runUsers(ctx, os.Args[2:])
	case "roles":
		err = a.runRoles(ctx, os.Args[2:])
	case "perms":
		err = a.runPerms(ctx, os.Args[2:])
	case "health":
		err = a.runHealth(ctx)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: trackerctl <command> [flags]

commands:
  login      -u <username> -p <password>
  logout
  register   -e <email> -u <username> -p <password>
  whoami     [-remote]
  users      list | get <id> | create | update | delete <id> | assign-roles <id> <role-id>... | set-password <id>
  roles      list | get <id> | create | delete <id> | assign-perms <id> <perm-id>... | remove-perm <id> <perm-id>
  perms      list | get <id> | create | delete <id>
  health
`)
	os.Exit(2)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// require checks the cached user snapshot before a request is issued. The
// server remains the authority; this only saves a round-trip.
func (a *app) require(perms ...string) error {
	user := a.mgr.CurrentUser()
	if user == nil {
		return fmt.Errorf("not logged in; run `trackerctl login`")
	}
	if !rbac.HasAllPermissions(user, perms) {
		return fmt.Errorf("permission denied (requires %v)", perms)
	}
	return nil
}

func (a *app) runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	fs.Parse(args)
	if *username == "" || *password == "" {
		return fmt.Errorf("both -u and -p are required")
	}
	user, err := a.client.Auth.Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s mode)\n", user.Username, a.mgr.Mode())
	return nil
}

func (a *app) runRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	email := fs.String("e", "", "email")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	fs.Parse(args)
	if *email == "" || *username == "" || *password == "" {
		return fmt.Errorf("-e, -u and -p are required")
	}
	user, err := a.client.Auth.Register(ctx, api.RegisterRequest{
		Email:    *email,
		Username: *username,
		Password: *password,
	})
	if err != nil {
		return err
	}
	return printJSON(user)
}

func (a *app) runWhoami(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	remote := fs.Bool("remote", false, "re-fetch the user from the server")
	fs.Parse(args)

	if *remote {
		user, err := a.client.Auth.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(user)
	}

	sess := a.mgr.Session()
	if !sess.IsAuthenticated {
		fmt.Println("not logged in")
		return nil
	}
	if err := printJSON(sess.User); err != nil {
		return err
	}
	fmt.Printf("effective permissions: %v\n", rbac.UserPermissions(sess.User))
	return nil
}

func (a *app) runUsers(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "list":
		if err := a.require(permUsersRead); err != nil {
			return err
		}
		users, err := a.client.Users.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(users)
	case "get":
		if len(args) < 2 {
			usage()
		}
		if err := a.require(permUsersRead); err != nil {
			return err
		}
		user, err := a.client.Users.Get(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(user)
	case "create":
		fs := flag.NewFlagSet("users create", flag.ExitOnError)
		email := fs.String("e", "", "email")
		username := fs.String("u", "", "username")
		password := fs.String("p", "", "password")
		fs.Parse(args[1:])
		if err := a.require(permUsersWrite); err != nil {
			return err
		}
		user, err := a.client.Users.Create(ctx, api.UserCreate{Email: *email, Username: *username, Password: *password})
		if err != nil {
			return err
		}
		return printJSON(user)
	case "update":
		fs := flag.NewFlagSet("users update", flag.ExitOnError)
		email := fs.String("e", "", "new email")
		username := fs.String("u", "", "new username")
		active := fs.String("active", "", "true or false")
		fs.Parse(args[1:])
		rest := fs.Args()
		if len(rest) < 1 {
			usage()
		}
		if err := a.require(permUsersWrite); err != nil {
			return err
		}
		var upd api.UserUpdate
		if *email != "" {
			upd.Email = email
		}
		if *username != "" {
			upd.Username = username
		}
		if *active != "" {
			v := *active == "true"
			upd.IsActive = &v
		}
		user, err := a.client.Users.Update(ctx, rest[0], upd)
		if err != nil {
			return err
		}
		return printJSON(user)
	case "delete":
		if len(args) < 2 {
			usage()
		}
		if err := a.require(permUsersWrite); err != nil {
			return err
		}
		if err := a.client.Users.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted user %s\n", args[1])
		return nil
	case "assign-roles":
		if len(args) < 3 {
			usage()
		}
		if err := a.require(permUsersWrite, permRolesRead); err != nil {
			return err
		}
		user, err := a.client.Users.AssignRoles(ctx, args[1], args[2:])
		if err != nil {
			return err
		}
		return printJSON(user)
	case "set-password":
		fs := flag.NewFlagSet("users set-password", flag.ExitOnError)
		current := fs.String("current", "", "current password")
		next := fs.String("new", "", "new password")
		fs.Parse(args[1:])
		rest := fs.Args()
		if len(rest) < 1 || *next == "" {
			usage()
		}
		return a.client.Users.UpdatePassword(ctx, rest[0], api.PasswordUpdate{
			CurrentPassword: *current,
			NewPassword:     *next,
		})
	default:
		usage()
	}
	return nil
}

func (a *app) runRoles(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "list":
		if err := a.require(permRolesRead); err != nil {
			return err
		}
		roles, err := a.client.Roles.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(roles)
	case "get":
		if len(args) < 2 {
			usage()
		}
		if err := a.require(permRolesRead); err != nil {
			return err
		}
		role, err := a.client.Roles.Get(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(role)
	case "create":
		fs := flag.NewFlagSet("roles create", flag.ExitOnError)
		name := fs.String("n", "", "role name")
		desc := fs.String("d", "", "description")
		fs.Parse(args[1:])
		if *name == "" {
			usage()
		}
		if err := a.require(permRolesWrite); err != nil {
			return err
		}
		role, err := a.client.Roles.Create(ctx, api.RoleCreate{Name: *name, Description: *desc})
		if err != nil {
			return err
		}
		return printJSON(role)
	case "delete":
		if len(args) < 2 {
			usage()
		}
		if err := a.require(permRolesWrite); err != nil {
			return err
		}
		if err := a.client.Roles.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted role %s\n", args[1])
		return nil
	case "assign-perms":
		if len(args) < 3 {
			usage()
		}
		if err := a.require(permRolesWrite, permPermsRead); err != nil {
			return err
		}
		role, err := a.client.Roles.AssignPermissions(ctx, args[1], args[2:])
		if err != nil {
			return err
		}
		return printJSON(role)
	case "remove-perm":
		if len(args) < 3 {
			usage()
		}
		if err := a.require(permRolesWrite); err != nil {
			return err
		}
		role, err := a.client.Roles.RemovePermission(ctx, args[1], args[2])
		if err != nil {
			return err
		}
		return printJSON(role)
	default:
		usage()
	}
	return nil
}

func (a *app) runPerms(ctx context.Context, args []string) error {
	if len(args) < 1 {
		usage()
	}
	switch args[0] {
	case "list":
		if err := a.require(permPermsRead); err != nil {
			return err
		}
		perms, err := a.client.Permissions.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(perms)
	case "get":
		if len(args) < 2 {
			usage()
		}
		if err := a.require(permPermsRead); err != nil {
			return err
		}
		perm, err := a.client.Permissions.Get(ctx, args[1])
		if err != nil {
			return err
		}
		return printJSON(perm)
	case "create":
		fs := flag.NewFlagSet("perms create", flag.ExitOnError)
		name := fs.String("n", "", "permission name")
		resource := fs.String("r", "", "resource")
		action := fs.String("a", "", "action")
		desc := fs.String("d", "", "description")
		fs.Parse(args[1:])
		if *name == "" || *resource == "" || *action == "" {
			usage()
		}
		if err := a.require(permPermsWrite); err != nil {
			return err
		}
		perm, err := a.client.Permissions.Create(ctx, api.PermissionCreate{
			Name:        *name,
			Resource:    *resource,
			Action:      *action,
			Description: *desc,
		})
		if err != nil {
			return err
		}
		return printJSON(perm)
	case "delete":
		if len(args) < 2 {
			usage()
		}
		if err := a.require(permPermsWrite); err != nil {
			return err
		}
		if err := a.client.Permissions.Delete(ctx, args[1]); err != nil {
			return err
		}
		fmt.Printf("deleted permission %s\n", args[1])
		return nil
	default:
		usage()
	}
	return nil
}

func (a *app) runHealth(ctx context.Context) error {
	health, err := a.client.Health.Check(ctx)
	if err != nil {
		return err
	}
	return printJSON(health)
}

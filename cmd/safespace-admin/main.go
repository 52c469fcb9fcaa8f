// ABOUTME: Admin console for the SafeSpace platform
// ABOUTME: Signs admins in and manages approvals, doctors, platform roles, users and content

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/admin"
	"github.com/safespace/safespace-admin/internal/backend"
	"github.com/safespace/safespace-admin/internal/backend/local"
	"github.com/safespace/safespace-admin/internal/backend/s3objects"
	"github.com/safespace/safespace-admin/internal/backend/supabase"
	"github.com/safespace/safespace-admin/internal/catalog"
	"github.com/safespace/safespace-admin/internal/config"
	"github.com/safespace/safespace-admin/internal/doctors"
	"github.com/safespace/safespace-admin/internal/roles"
	"github.com/safespace/safespace-admin/internal/schema"
	"github.com/safespace/safespace-admin/internal/users"
)

const banner = `
            __                                          _           _
 ___  __ _ / _| ___  ___ _ __   __ _  ___ ___      __ _| |_ __ ___ (_)_ __
/ __|/ _' | |_ / _ \/ __| '_ \ / _' |/ __/ _ \___ / _' | | '_ ' _ \| | '_ \
\__ \ (_| |  _|  __/\__ \ |_) | (_| | (_|  __/___| (_| | | | | | | | | | | |
|___/\__,_|_|  \___||___/ .__/ \__,_|\___\___|    \__,_|_|_| |_| |_|_|_| |_|
                        |_|
`

func main() {
	configPath, args := extractConfigFlag(os.Args[1:])
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return
	case "login", "logout", "signup", "me", "status", "bootstrap",
		"admins", "doctors", "roles", "users", "content":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, configPath)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	switch cmd {
	case "login":
		err = a.cmdLogin(ctx, args)
	case "logout":
		err = a.cmdLogout(ctx)
	case "signup":
		err = a.cmdSignup(ctx, args)
	case "me":
		err = a.cmdMe(ctx)
	case "status":
		err = a.cmdStatus(ctx)
	case "bootstrap":
		err = a.cmdBootstrap(ctx, args)
	case "admins":
		err = a.cmdAdmins(ctx, args)
	case "doctors":
		err = a.cmdDoctors(ctx, args)
	case "roles":
		err = a.cmdRoles(ctx, args)
	case "users":
		err = a.cmdUsers(ctx, args)
	case "content":
		err = a.cmdContent(ctx, args)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: safespace-admin [--config <file>] <command> [args]")
	fmt.Println()
	yellow.Println("Account:")
	fmt.Println("  login [--email <email>]          Sign in (password is prompted)")
	fmt.Println("  logout                           Sign out and forget the stored session")
	fmt.Println("  signup --email <e> --name <n>    Request an admin account (starts pending)")
	fmt.Println("  me                               Show the signed-in admin")
	fmt.Println("  status                           Show backend and session status")
	fmt.Println("  bootstrap --email <email>        Promote an account to superadmin (local mode)")
	fmt.Println()
	yellow.Println("Admins:")
	fmt.Println("  admins [list]                    List all admin accounts")
	fmt.Println("  admins pending                   List accounts awaiting approval")
	fmt.Println("  admins approve <id>              Approve a pending account (superadmin)")
	fmt.Println("  admins reject <id> --reason <r>  Reject a pending account (superadmin)")
	fmt.Println("  admins delete <id> [--yes]       Delete a moderator account (superadmin)")
	fmt.Println()
	yellow.Println("Doctors:")
	fmt.Println("  doctors [list]                        List the doctors directory")
	fmt.Println("  doctors show <id>                     Show one doctor")
	fmt.Println("  doctors requests [--status s] [--all] List registration requests (pending by default)")
	fmt.Println("  doctors approve <request-id>          Create the doctor's account and listing (superadmin)")
	fmt.Println("  doctors reject <request-id> --reason <r>  Reject a registration (superadmin)")
	fmt.Println("  doctors add --name <n> --email <e> --category <c> [--phone p] [--state s] [--photo file]")
	fmt.Println("  doctors photo <id> <file>             Replace a doctor's profile picture")
	fmt.Println("  doctors delete <id> [--yes]           Delete a doctor and their picture")
	fmt.Println()
	yellow.Println("Platform:")
	fmt.Println("  roles [list] [--page N] [--limit N]   List platform role assignments")
	fmt.Println("  roles get <user-id>                   Show a user's platform role")
	fmt.Println("  roles set <user-id> <role>            Assign patient, doctor, admin or superadmin")
	fmt.Println("  roles search <query>                  Search by user id or role")
	fmt.Println("  roles stats                           Count assignments per role")
	fmt.Println("  users [list]                          List platform users")
	fmt.Println("  users search <query>                  Search users by email or name")
	fmt.Println("  users status <id> <status>            Set active, inactive or suspended")
	fmt.Println("  users stats                           Summarise the user base")
	fmt.Println()
	yellow.Println("Content:")
	fmt.Println("  content [list]                        List entertainment content")
	fmt.Println("  content show <id> [--html]            Show one item")
	fmt.Println("  content create --title <t> --type <video|audio> --category <c> [...]")
	fmt.Println("  content toggle <id>                   Flip active/inactive")
	fmt.Println("  content delete <id> [--yes]           Delete an item and its files")
	fmt.Println("  content upload <media|covers> <file>  Upload a file and print its URL")
	fmt.Println("  content stats                         Content counts and storage usage")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SAFESPACE_CONFIG         Config file (YAML or TOML); otherwise SAFESPACE_* variables are used")
	fmt.Println("  SAFESPACE_URL            Backend URL (VITE_SUPABASE_URL also accepted)")
	fmt.Println("  SAFESPACE_ANON_KEY       Backend anon key (VITE_SUPABASE_ANON_KEY also accepted)")
	fmt.Println("  SAFESPACE_MODE           supabase (default) or local")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  safespace-admin login --email root@example.com")
	fmt.Println("  safespace-admin admins pending")
	fmt.Println("  safespace-admin admins reject 3f2a... --reason 'not a staff member'")
	fmt.Println("  safespace-admin doctors approve 9c1e...")
	fmt.Println()
}

// extractConfigFlag pulls --config <file> out of args. SAFESPACE_CONFIG is
// used when the flag is absent.
func extractConfigFlag(args []string) (string, []string) {
	path := os.Getenv("SAFESPACE_CONFIG")
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if (args[i] == "--config" || args[i] == "-c") && i+1 < len(args) {
			path = args[i+1]
			i++
			continue
		}
		rest = append(rest, args[i])
	}
	return path, rest
}

// app holds the wired services for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	backend   *backend.Client
	local     *local.Store
	sessions  *backend.FileSessionStore
	session   *admin.Session
	approvals *admin.Approvals
	roles     *roles.Service
	users     *users.Service
	catalog   *catalog.Service
	doctors   *doctors.Service
	closed    bool
}

func setup(ctx context.Context, configPath string) (*app, error) {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		return nil, err
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		sessions: backend.NewFileSessionStore(cfg.Session.Path),
	}

	switch cfg.Backend.Mode {
	case config.ModeLocal:
		store, err := local.Open(local.Options{
			DatabasePath:  cfg.Local.DatabasePath,
			StorageDir:    cfg.Local.StorageDir,
			PublicBaseURL: cfg.Local.PublicBaseURL,
			JWTSecret:     []byte(cfg.Local.JWTSecret),
			SessionTTL:    cfg.Local.SessionTTL,
			Sessions:      a.sessions,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("opening local backend: %w", err)
		}
		a.local = store
		a.backend = store.Backend()
	default:
		client, err := supabase.New(supabase.Options{
			URL:            cfg.Backend.URL,
			AnonKey:        cfg.Backend.AnonKey,
			ServiceRoleKey: cfg.Backend.ServiceRoleKey,
			Timeout:        cfg.Backend.RequestTimeout,
			Sessions:       a.sessions,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating backend client: %w", err)
		}
		a.backend = client.Backend()
	}

	if cfg.Storage.Driver == config.DriverS3 {
		objects, err := s3objects.New(ctx, s3objects.Options{
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			PublicBaseURL:   cfg.Storage.S3.PublicBaseURL,
			Logger:          logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating s3 storage: %w", err)
		}
		a.backend.Storage = objects
	}

	a.session = admin.NewSession(a.backend, logger)
	a.roles = roles.New(a.backend.Rows, logger)
	a.approvals = admin.NewApprovals(a.backend, a.session, a.roles, logger)
	a.users = users.New(a.backend.Rows, logger)
	a.catalog = catalog.New(a.backend.Rows, a.backend.Storage, logger)
	a.doctors = doctors.New(a.backend, a.session, a.roles, logger)

	return a, nil
}

func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	if a.local != nil {
		if err := a.local.Close(); err != nil {
			a.logger.Warn("closing local backend", "error", err)
		}
	}
}

var errSignedOut = errors.New("not signed in (run: safespace-admin login)")

// requireAdmin resolves the stored session into an approved admin.
func (a *app) requireAdmin(ctx context.Context) (*schema.AdminAccount, error) {
	me, err := a.session.FetchCurrentIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if me == nil {
		return nil, errSignedOut
	}
	return me, nil
}

func (a *app) requireSuperadmin(ctx context.Context) (*schema.AdminAccount, error) {
	me, err := a.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if me.Role != schema.AdminRoleSuperadmin {
		return nil, fmt.Errorf("this command requires a superadmin (you are %s)", me.Role)
	}
	return me, nil
}

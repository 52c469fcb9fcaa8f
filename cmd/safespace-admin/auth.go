// ABOUTME: Account commands: login, logout, signup, me, status and bootstrap
// ABOUTME: The session is persisted between invocations in the configured session file

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/admin"
	"github.com/safespace/safespace-admin/internal/backend/local"
	"github.com/safespace/safespace-admin/internal/config"
	"github.com/safespace/safespace-admin/internal/schema"
)

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	flags, _ := parseFlags(args)

	email := flags["email"]
	if email == "" {
		var err error
		if email, err = promptLine("Email: "); err != nil {
			return err
		}
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	me, err := a.session.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, admin.ErrPendingApproval) {
			fmt.Fprintln(os.Stderr, "A superadmin must approve your account before you can sign in.")
		}
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Signed in as %s ", me.DisplayName())
	fmt.Printf("(%s)\n", me.Role)
	return nil
}

func (a *app) cmdLogout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		// Local state is already cleared.
		color.Yellow("Signed out locally, but the backend reported: %v\n", err)
		return nil
	}
	color.Green("✓ Signed out\n")
	return nil
}

func (a *app) cmdSignup(ctx context.Context, args []string) error {
	flags, _ := parseFlags(args)

	email, name := flags["email"], flags["name"]
	var err error
	if email == "" {
		if email, err = promptLine("Email: "); err != nil {
			return err
		}
	}
	if name == "" {
		if name, err = promptLine("Full name: "); err != nil {
			return err
		}
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	again, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != again {
		return fmt.Errorf("passwords do not match")
	}

	account, err := a.session.Signup(ctx, email, password, name)
	if err != nil {
		if errors.Is(err, admin.ErrPartialSignup) {
			color.Yellow("The sign-in identity for %s was created but could not be removed.\n", email)
			fmt.Println("  Ask an operator to delete it before signing up again.")
		}
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Account requested for %s\n", account.Email)
	fmt.Printf("  Status:  %s\n", account.Role)
	fmt.Println("  You can sign in once a superadmin approves the account.")
	return nil
}

func (a *app) cmdMe(ctx context.Context) error {
	me, err := a.requireAdmin(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Println("  Identity")
	cyan.Println("  --------")
	fmt.Printf("  Admin ID:     %s\n", me.ID)
	fmt.Printf("  Email:        %s\n", me.Email)
	fmt.Printf("  Full Name:    %s\n", deref(me.FullName))
	green.Printf("  Role:         %s\n", me.Role)
	fmt.Printf("  Member Since: %s\n", me.CreatedAt.Local().Format("Jan 02 2006"))
	fmt.Println()
	return nil
}

func (a *app) cmdStatus(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	green.Printf("  Backend:  ")
	switch a.cfg.Backend.Mode {
	case config.ModeLocal:
		fmt.Printf("local (%s)\n", a.cfg.Local.DatabasePath)
	default:
		fmt.Printf("%s\n", a.cfg.Backend.URL)
	}
	green.Printf("  Storage:  ")
	fmt.Printf("%s\n", a.cfg.Storage.Driver)
	green.Printf("  Session:  ")
	fmt.Printf("%s\n", a.sessions.Path())

	me, err := a.session.FetchCurrentIdentity(ctx)
	switch {
	case err != nil:
		yellow.Printf("  Identity: ")
		color.Red("unavailable (%v)\n", err)
	case me == nil:
		yellow.Printf("  Identity: ")
		fmt.Println("(signed out - run safespace-admin login)")
	default:
		green.Printf("  Identity: ")
		fmt.Printf("%s <%s>\n", me.DisplayName(), me.Email)
		green.Printf("  Role:     ")
		fmt.Printf("%s\n", me.Role)
	}

	fmt.Println()
	return nil
}

// cmdBootstrap promotes an existing account to superadmin directly in the
// local database, giving a fresh deployment its first approver.
func (a *app) cmdBootstrap(ctx context.Context, args []string) error {
	if a.local == nil {
		return fmt.Errorf("bootstrap is only available with backend.mode: local")
	}
	flags, _ := parseFlags(args)
	email := flags["email"]
	if email == "" {
		return fmt.Errorf("usage: bootstrap --email <email>")
	}

	if err := a.local.PromoteSuperadmin(ctx, email); err != nil {
		if errors.Is(err, local.ErrAdminNotFound) {
			return fmt.Errorf("no admin account for %s (run signup first)", email)
		}
		return err
	}
	color.Green("✓ %s is now a %s\n", email, schema.AdminRoleSuperadmin)
	fmt.Fprintln(os.Stderr, "  Sign in again to pick up the new role.")
	return nil
}

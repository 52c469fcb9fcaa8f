// ABOUTME: Admin account commands: list, pending, approve, reject and delete
// ABOUTME: Decisions are made as the signed-in superadmin

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/schema"
)

func (a *app) cmdAdmins(ctx context.Context, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return a.cmdAdminsList(ctx, false)
	case "pending":
		return a.cmdAdminsList(ctx, true)
	case "approve":
		return a.cmdAdminsApprove(ctx, args)
	case "reject":
		return a.cmdAdminsReject(ctx, args)
	case "delete", "rm", "remove":
		return a.cmdAdminsDelete(ctx, args)
	default:
		return fmt.Errorf("unknown admins subcommand: %s (use list, pending, approve, reject, delete)", subcmd)
	}
}

func (a *app) cmdAdminsList(ctx context.Context, pendingOnly bool) error {
	if _, err := a.requireAdmin(ctx); err != nil {
		return err
	}

	var (
		list  []schema.AdminAccount
		err   error
		title = "Admin Accounts"
	)
	if pendingOnly {
		title = "Pending Approval"
		list, err = a.approvals.ListPending(ctx)
	} else {
		list, err = a.approvals.ListAll(ctx)
	}
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", title)
	cyan.Printf("  %s\n", strings.Repeat("-", len(title)))

	if len(list) == 0 {
		fmt.Println("  (none)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tEMAIL\tNAME\tROLE\tCREATED\tMANAGE")
	fmt.Fprintln(w, "  --\t-----\t----\t----\t-------\t------")
	for i := range list {
		acct := &list[i]
		manage := ""
		if a.approvals.CanManage(acct) {
			manage = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			acct.ID,
			truncate(acct.Email, 32),
			truncate(deref(acct.FullName), 24),
			roleLabel(acct.Role),
			acct.CreatedAt.Local().Format("Jan 02 15:04"),
			manage,
		)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func roleLabel(r schema.AdminRole) string {
	switch r {
	case schema.AdminRoleSuperadmin:
		return color.MagentaString(string(r))
	case schema.AdminRoleModerator:
		return color.GreenString(string(r))
	case schema.AdminRolePending:
		return color.YellowString(string(r))
	case schema.AdminRoleRejected:
		return color.RedString(string(r))
	}
	return string(r)
}

func (a *app) cmdAdminsApprove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: admins approve <admin-id>")
	}
	me, err := a.requireSuperadmin(ctx)
	if err != nil {
		return err
	}

	res, err := a.approvals.Approve(ctx, args[0], me.ID)
	if err != nil {
		return err
	}
	color.Green("✓ %s\n", res.Message)
	return nil
}

func (a *app) cmdAdminsReject(ctx context.Context, args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) < 1 {
		return fmt.Errorf("usage: admins reject <admin-id> --reason <text>")
	}
	me, err := a.requireSuperadmin(ctx)
	if err != nil {
		return err
	}

	reason := flags["reason"]
	if strings.TrimSpace(reason) == "" {
		if reason, err = promptLine("Reason for rejection: "); err != nil {
			return err
		}
	}

	res, err := a.approvals.Reject(ctx, positional[0], me.ID, reason)
	if err != nil {
		return err
	}
	color.Green("✓ %s\n", res.Message)
	return nil
}

func (a *app) cmdAdminsDelete(ctx context.Context, args []string) error {
	flags, positional := parseFlags(args, "yes")
	if len(positional) < 1 {
		return fmt.Errorf("usage: admins delete <admin-id> [--yes]")
	}
	if _, err := a.requireSuperadmin(ctx); err != nil {
		return err
	}

	id := positional[0]
	if flags["yes"] != "true" && !confirm(fmt.Sprintf("Delete admin %s?", id)) {
		return fmt.Errorf("aborted (pass --yes to delete non-interactively)")
	}

	if err := a.approvals.Delete(ctx, id); err != nil {
		return err
	}
	color.Green("✓ Deleted admin: %s\n", id)
	return nil
}

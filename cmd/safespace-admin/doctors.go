// ABOUTME: Doctor commands: registration review plus the doctors directory
// ABOUTME: Approving prints any generated password so it can be handed to the doctor

package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/safespace/safespace-admin/internal/schema"
)

func (a *app) cmdDoctors(ctx context.Context, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	if _, err := a.requireAdmin(ctx); err != nil {
		return err
	}

	switch subcmd {
	case "list", "ls":
		return a.cmdDoctorsList(ctx)
	case "show":
		return a.cmdDoctorsShow(ctx, args)
	case "requests":
		return a.cmdDoctorsRequests(ctx, args)
	case "approve":
		return a.cmdDoctorsApprove(ctx, args)
	case "reject":
		return a.cmdDoctorsReject(ctx, args)
	case "add", "create":
		return a.cmdDoctorsAdd(ctx, args)
	case "photo":
		return a.cmdDoctorsPhoto(ctx, args)
	case "delete", "rm", "remove":
		return a.cmdDoctorsDelete(ctx, args)
	default:
		return fmt.Errorf("unknown doctors subcommand: %s (use list, show, requests, approve, reject, add, photo, delete)", subcmd)
	}
}

func parseDoctorID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid doctor id %q", s)
	}
	return id, nil
}

func (a *app) cmdDoctorsList(ctx context.Context) error {
	list, err := a.doctors.List(ctx)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Doctors")
	cyan.Println("  -------")

	if len(list) == 0 {
		fmt.Println("  (no doctors)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tCATEGORY\tSTATE")
	fmt.Fprintln(w, "  --\t----\t-----\t--------\t-----")
	for _, d := range list {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n",
			d.ID,
			truncate(d.Name, 28),
			d.Email,
			d.Category,
			deref(d.DominantState),
		)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func (a *app) cmdDoctorsShow(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: doctors show <id>")
	}
	id, err := parseDoctorID(args[0])
	if err != nil {
		return err
	}
	d, err := a.doctors.Get(ctx, id)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", d.Name)
	cyan.Printf("  %s\n", strings.Repeat("-", len(d.Name)))
	fmt.Printf("  ID:          %d\n", d.ID)
	fmt.Printf("  Email:       %s\n", d.Email)
	if d.Phone != "" {
		fmt.Printf("  Phone:       %s\n", d.Phone)
	}
	fmt.Printf("  Category:    %s\n", d.Category)
	if d.DominantState != nil {
		fmt.Printf("  Dominant:    %s\n", *d.DominantState)
	}
	if d.ProfilePicture != nil {
		fmt.Printf("  Picture:     %s\n", *d.ProfilePicture)
	}
	fmt.Printf("  Added:       %s\n", d.CreatedAt.Local().Format("Jan 02 2006 15:04"))
	fmt.Println()
	return nil
}

func (a *app) cmdDoctorsRequests(ctx context.Context, args []string) error {
	flags, _ := parseFlags(args, "all")
	status := schema.DoctorRequestPending
	if flags["all"] == "true" {
		status = ""
	} else if s := flags["status"]; s != "" {
		status = schema.DoctorRequestStatus(s)
	}

	list, err := a.doctors.ListRequests(ctx, status)
	if err != nil {
		return err
	}

	title := "Registration Requests"
	if status != "" {
		title = fmt.Sprintf("Registration Requests (%s)", status)
	}
	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Printf("  %s\n", title)
	cyan.Printf("  %s\n", strings.Repeat("-", len(title)))

	if len(list) == 0 {
		fmt.Println("  (no requests)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tSPECIALIZATION\tLICENSE\tSTATUS\tSUBMITTED")
	fmt.Fprintln(w, "  --\t----\t-----\t--------------\t-------\t------\t---------")
	for _, r := range list {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			truncate(r.FullName, 24),
			r.Email,
			r.Specialization,
			deref(r.LicenseNumber),
			r.Status,
			r.SubmittedAt.Local().Format("Jan 02 15:04"),
		)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func (a *app) cmdDoctorsApprove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: doctors approve <request-id>")
	}
	if _, err := a.requireSuperadmin(ctx); err != nil {
		return err
	}

	res, err := a.doctors.Approve(ctx, args[0])
	if err != nil {
		return err
	}

	color.Green("✓ Approved %s\n", res.Request.FullName)
	fmt.Printf("  Doctor:    %d (%s)\n", res.Doctor.ID, res.Doctor.Category)
	fmt.Printf("  User:      %s\n", res.UserID)
	if !res.IdentityCreated {
		fmt.Println("  Account:   existing account reused")
	}
	if !res.RoleAssigned {
		color.Yellow("  Warning: the doctor role could not be recorded; set it with: roles set %s doctor\n", res.UserID)
	}
	if res.TemporaryPassword != "" {
		fmt.Println()
		color.Yellow("  Temporary password (shown once): %s\n", res.TemporaryPassword)
	}
	return nil
}

func (a *app) cmdDoctorsReject(ctx context.Context, args []string) error {
	flags, positional := parseFlags(args)
	if len(positional) < 1 || flags["reason"] == "" {
		return fmt.Errorf("usage: doctors reject <request-id> --reason <reason>")
	}
	if _, err := a.requireSuperadmin(ctx); err != nil {
		return err
	}

	req, err := a.doctors.Reject(ctx, positional[0], flags["reason"])
	if err != nil {
		return err
	}
	color.Green("✓ Rejected %s\n", req.FullName)
	return nil
}

func (a *app) cmdDoctorsAdd(ctx context.Context, args []string) error {
	flags, _ := parseFlags(args)
	in := schema.DoctorInsert{
		Name:     flags["name"],
		Email:    flags["email"],
		Phone:    flags["phone"],
		Category: flags["category"],
	}
	if in.Name == "" || in.Email == "" || in.Category == "" {
		return fmt.Errorf("usage: doctors add --name <n> --email <e> --category <c> [--phone <p>] [--state <s>] [--photo <file>]")
	}
	if s := flags["state"]; s != "" {
		in.DominantState = &s
	}
	if path := flags["photo"]; path != "" {
		f, contentType, err := openUpload(path)
		if err != nil {
			return err
		}
		url, err := a.doctors.UploadPicture(ctx, in.Name, filepath.Base(path), f, contentType)
		f.Close()
		if err != nil {
			return err
		}
		in.ProfilePicture = &url
	}

	d, err := a.doctors.Create(ctx, in)
	if err != nil {
		return err
	}
	color.Green("✓ Added doctor: %d\n", d.ID)
	fmt.Printf("  Name:      %s\n", d.Name)
	fmt.Printf("  Category:  %s\n", d.Category)
	return nil
}

func (a *app) cmdDoctorsPhoto(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: doctors photo <id> <file>")
	}
	id, err := parseDoctorID(args[0])
	if err != nil {
		return err
	}
	f, contentType, err := openUpload(args[1])
	if err != nil {
		return err
	}
	defer f.Close()

	d, err := a.doctors.SetPicture(ctx, id, filepath.Base(args[1]), f, contentType)
	if err != nil {
		return err
	}
	color.Green("✓ Updated picture for %s\n", d.Name)
	fmt.Println(deref(d.ProfilePicture))
	return nil
}

func (a *app) cmdDoctorsDelete(ctx context.Context, args []string) error {
	flags, positional := parseFlags(args, "yes")
	if len(positional) < 1 {
		return fmt.Errorf("usage: doctors delete <id> [--yes]")
	}
	id, err := parseDoctorID(positional[0])
	if err != nil {
		return err
	}
	if flags["yes"] != "true" && !confirm(fmt.Sprintf("Delete doctor %d and their picture?", id)) {
		return fmt.Errorf("aborted (pass --yes to delete non-interactively)")
	}
	if err := a.doctors.Delete(ctx, id); err != nil {
		return err
	}
	color.Green("✓ Deleted doctor: %d\n", id)
	return nil
}

func openUpload(path string) (*os.File, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening %s: %w", path, err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return f, contentType, nil
}

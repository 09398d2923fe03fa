// Command cargo-token mints bearer tokens for local development and tests.
//
//	cargo-token -secret dev -sub ho-desk -role BRANCH -branch HO -reports bookings,payments
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BearBump/CargoLedger/internal/api/httpapi"
	"github.com/BearBump/CargoLedger/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := flag.NewFlagSet("cargo-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	secret := fs.String("secret", getenv("CARGO_JWT_SECRET"), "HS256 signing secret (default $CARGO_JWT_SECRET)")
	sub := fs.String("sub", "", "user id")
	role := fs.String("role", string(models.RoleBranch), "SUPER_ADMIN or BRANCH")
	branch := fs.String("branch", "", "home branch code")
	allowed := fs.String("allowed", "", "comma separated extra branch codes")
	reports := fs.String("reports", "", "comma separated report types")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		return fmt.Errorf("secret is required")
	}
	if *sub == "" {
		return fmt.Errorf("sub is required")
	}
	u := &models.User{ID: *sub, HomeBranch: models.BranchID(strings.ToUpper(*branch))}
	switch models.Role(strings.ToUpper(*role)) {
	case models.RoleSuperAdmin:
		u.Role = models.RoleSuperAdmin
	case models.RoleBranch:
		u.Role = models.RoleBranch
		if u.HomeBranch == "" {
			return fmt.Errorf("branch is required for role BRANCH")
		}
	default:
		return fmt.Errorf("unknown role %q", *role)
	}
	for _, b := range splitList(*allowed) {
		u.AllowedBranches = append(u.AllowedBranches, models.BranchID(strings.ToUpper(b)))
	}
	for _, r := range splitList(*reports) {
		rt := models.ReportType(strings.ToLower(r))
		if !rt.Valid() {
			return fmt.Errorf("unknown report type %q", r)
		}
		u.AllowedReports = append(u.AllowedReports, rt)
	}

	tok, err := httpapi.MintToken([]byte(*secret), u, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

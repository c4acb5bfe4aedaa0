package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/leadgate/internal/config"
	pkgcrypto "github.com/and161185/leadgate/internal/crypto"
	"github.com/and161185/leadgate/internal/migrate"
	httpserver "github.com/and161185/leadgate/internal/server/http"
	"github.com/and161185/leadgate/internal/service"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	var (
		envFile string
		server  string
	)

	root := &cobra.Command{
		Use:   "leadctl",
		Short: "Operator CLI for the leadgate service",
		Long: `Command-line tools for operating leadgate.

Generate the admin credential, mint access tokens, apply database
migrations and list captured leads through the admin API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if !cmd.Flags().Changed("server") {
				server = envOr("LEADGATE_SERVER", server)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	root.PersistentFlags().StringVar(&server, "server", "http://localhost:3000", "leadgate base URL (env LEADGATE_SERVER)")

	root.AddCommand(
		newVersionCmd(),
		newHashPasswordCmd(),
		newTokenCmd(),
		newLoginCmd(&server),
		newLeadsCmd(&server),
		newMigrateCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leadctl %s (%s)\n", version, buildDate)
		},
	}
}

// readSecret returns flagVal, or the first line of stdin when it is empty.
func readSecret(in io.Reader, flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}

func newHashPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print an ADMIN_PASSWORD_HASH value",
		Long: `Hash a password with Argon2id and print the value for ADMIN_PASSWORD_HASH.

The password is read from --password or, when omitted, from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := readSecret(cmd.InOrStdin(), password)
			if err != nil {
				return err
			}
			enc, err := pkgcrypto.EncodePasswordHash(pw)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: read stdin)")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		key     string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin access token offline",
		Long:  "Sign an admin access token with ADMIN_JWT_KEY without contacting the server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				key = os.Getenv("ADMIN_JWT_KEY")
			}
			if subject == "" {
				subject = os.Getenv("ADMIN_USERNAME")
			}
			if key == "" {
				return errors.New("missing signing key (--key or ADMIN_JWT_KEY)")
			}
			if subject == "" {
				return errors.New("missing subject (--subject or ADMIN_USERNAME)")
			}
			svc := service.NewAdminService(service.AdminConfig{SignKey: []byte(key), AccessTTL: ttl}, nil, nil)
			tok, err := svc.IssueToken(subject)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "HS256 signing key (default ADMIN_JWT_KEY)")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default ADMIN_USERNAME)")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	return cmd
}

func newLoginCmd(server *string) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the admin API and save the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" {
				return errors.New("missing --username")
			}
			pw, err := readSecret(cmd.InOrStdin(), password)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newAPIClient(*server).login(ctx, username, pw)
			if err != nil {
				return err
			}
			if err := saveToken(tokenFile{Server: *server, AccessToken: res.AccessToken, ExpiresAt: res.ExpiresAt}); err != nil {
				return fmt.Errorf("save token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in; token valid until %s\n", res.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password (default: read stdin)")
	return cmd
}

func newLeadsCmd(server *string) *cobra.Command {
	var (
		token  string
		source string
		limit  int
		output string
	)
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "List captured leads",
		Long:  "List captured leads, newest first, through the admin API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if token == "" {
				t, err := loadToken(*server)
				if err != nil {
					return err
				}
				token = t
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			leads, err := newAPIClient(*server).leads(ctx, token, source, limit)
			if err != nil {
				return err
			}
			return printLeads(cmd.OutOrStdout(), leads, output)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token (default: saved by login)")
	cmd.Flags().StringVar(&source, "source", "", "filter by source (contact, book-demo, newsletter, waitlist, lead-magnet)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (server default 100, max 500)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	return cmd
}

func printLeads(w io.Writer, leads []httpserver.LeadView, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(leads)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CREATED\tSOURCE\tEMAIL\tNAME\tCONFIRMED\tTAGS")
		for _, l := range leads {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				l.CreatedAt.UTC().Format(time.RFC3339), l.Source, l.Email, l.Name, l.Confirmed, strings.Join(l.Tags, ","))
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func newMigrateCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (default DATABASE_URL)")

	resolve := func() (string, error) {
		if dsn == "" {
			dsn = os.Getenv("DATABASE_URL")
		}
		if dsn == "" {
			return "", errors.New("missing DSN (--dsn or DATABASE_URL)")
		}
		return dsn, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := resolve()
			if err != nil {
				return err
			}
			applied, err := migrate.Up(cmd.Context(), d)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending migrations")
			}
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %05d %s\n", m.Version, m.Path)
			}
			return nil
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show migration state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := resolve()
			if err != nil {
				return err
			}
			list, err := migrate.List(cmd.Context(), d)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATE\tFILE")
			for _, m := range list {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				fmt.Fprintf(tw, "%05d\t%s\t%s\n", m.Version, state, m.Path)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(up, status)
	return cmd
}

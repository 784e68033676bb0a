package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/snaproll/server/internal/auth"
	"github.com/snaproll/server/internal/domain/ids"
	"github.com/snaproll/server/internal/storage/postgres"
)

var hostPassword string

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage host accounts",
	Long: `Manage host accounts.

Hosts own galleries and authenticate against the login endpoint. There is no
self-service signup; accounts are provisioned by an operator.`,
}

var hostCreateCmd = &cobra.Command{
	Use:   "create <email>",
	Short: "Create a host account",
	Long: `Create a host account with the given email.

The password is read from the terminal unless --password is provided, which
is intended for scripted provisioning only.

Examples:
  # Create a host, prompting for the password
  server host create nina@example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHostCreate(cmd, args[0])
	},
}

func init() {
	hostCreateCmd.Flags().StringVar(&hostPassword, "password", "", "password (prompted when omitted)")
	hostCmd.AddCommand(hostCreateCmd)
}

func runHostCreate(cmd *cobra.Command, emailArg string) error {
	hostEmail := strings.ToLower(strings.TrimSpace(emailArg))

	password := hostPassword
	if password == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	hosts, err := postgres.NewHostRepository(pool)
	if err != nil {
		return fmt.Errorf("host repository: %w", err)
	}

	host := auth.Host{
		ID:           ids.NewUUID(),
		Email:        hostEmail,
		PasswordHash: hash,
	}
	if err := hosts.CreateHost(ctx, host); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created host %s (%s)\n", host.Email, host.ID)
	return nil
}

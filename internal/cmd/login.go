package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seralabs/telepilot/internal/observability"
	"github.com/seralabs/telepilot/pkg/jobs"
	"github.com/seralabs/telepilot/pkg/sessionstore"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Telegram Web interactively",
	Long: `Log in to Telegram Web from the terminal.

A saved session for the phone number is reused when still valid. Otherwise
the fresh login flow runs and prompts for the code Telegram sends, and for
the cloud password when 2FA is enabled.

Example:
  telepilot login --phone "+15551234567"
  telepilot login --phone "+15551234567" --force --headless=false`,
	RunE: runLogin,
}

var (
	loginPhone    string
	loginForce    bool
	loginHeadless bool
	loginProxy    string
	loginRunLabel string
)

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVar(&loginPhone, "phone", "", "Phone number in international format (required)")
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Ignore any saved session and log in fresh")
	loginCmd.Flags().BoolVar(&loginHeadless, "headless", true, "Run the browser headless")
	loginCmd.Flags().StringVar(&loginProxy, "proxy", "", "Proxy server for the browser")
	loginCmd.Flags().StringVar(&loginRunLabel, "run-label", "", "Name for the telemetry run")

	_ = loginCmd.MarkFlagRequired("phone")
}

func runLogin(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	sessions := sessionstore.NewStore(cfg.Storage.SessionsDir)
	registry := jobs.NewRegistry(
		browserFactory(cfg),
		sessions,
		jobs.Options{
			RunsDir:    cfg.Storage.RunsDir,
			ReportsDir: cfg.Storage.ReportsDir,
		},
		nil,
		observability.CLILogger,
	)
	defer registry.Close()

	job, err := registry.CreateLoginJob(jobs.CreateParams{
		Phone:    loginPhone,
		Force:    loginForce,
		Headless: loginHeadless,
		Proxy:    loginProxy,
		RunLabel: loginRunLabel,
	})
	if err != nil {
		return err
	}

	observability.CLILogger.Info("Login started",
		zap.String("phone", job.Phone),
		zap.String("run_label", job.RunLabel))
	fmt.Printf("Logging in as %s...\n", job.Phone)

	reader := bufio.NewReader(os.Stdin)
	for {
		job, err = waitJobSettled(ctx, registry, job.ID)
		if err != nil {
			return err
		}

		switch job.Status {
		case jobs.StatusCompleted:
			fmt.Println("Login successful. Session saved.")
			fmt.Printf("Run data: %s\n", job.RunLabel)
			return nil

		case jobs.StatusFailed:
			return fmt.Errorf("login failed: %s", job.Error)

		case jobs.StatusWaitingForOTP:
			code, err := prompt(reader, "Enter the code Telegram sent you: ")
			if err != nil {
				return err
			}
			job, err = registry.SubmitOTP(ctx, job.ID, code)
			if err != nil {
				return err
			}

		case jobs.StatusWaitingFor2FA:
			password, err := prompt(reader, "Enter your cloud password (2FA): ")
			if err != nil {
				return err
			}
			job, err = registry.SubmitTwoFactor(ctx, job.ID, password)
			if err != nil {
				return err
			}
		}
	}
}

// waitJobSettled polls until the job leaves queued/running.
func waitJobSettled(ctx context.Context, registry *jobs.Registry, id string) (jobs.LoginJob, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		job, err := registry.Get(id)
		if err != nil {
			return jobs.LoginJob{}, err
		}
		if job.Status != jobs.StatusQueued && job.Status != jobs.StatusRunning {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return jobs.LoginJob{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func prompt(reader *bufio.Reader, message string) (string, error) {
	fmt.Print(message)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("input must not be empty")
	}
	return line, nil
}

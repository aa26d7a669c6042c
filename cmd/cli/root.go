// Package cli implements keyctl, the local command line for the key custody
// core. It drives the same lifecycle controller as the HTTP server and asks
// for passwords on the terminal.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyvault/internal/app"
	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/config"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/internal/infrastructure/prompt"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// Backend is the part of the lifecycle controller keyctl drives.
// Backend 是 keyctl 调用的生命周期控制器接口。
type Backend interface {
	ListKeys(ctx context.Context, keyringID string) ([]*models.KeyDetails, error)
	GetKeyDetails(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyDetails, error)
	GetArmoredKeys(ctx context.Context, keyringID string, fprs []models.Fingerprint, export models.ArmoredExport) ([]models.ArmoredKey, error)
	GenerateKey(ctx context.Context, keyringID string, params models.GenerateParams) (*models.KeyDetails, error)
	ImportKeys(ctx context.Context, keyringID string, armored string) ([]*models.KeyDetails, error)
	RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) (lifecycle.Outcome, error)

	RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (lifecycle.Outcome, error)
	RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (lifecycle.Outcome, error)
	AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user models.UserID) (lifecycle.Outcome, error)
	RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string) (lifecycle.Outcome, error)
	SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, expiry *time.Time) (lifecycle.Outcome, error)
	SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, current, next []byte) (lifecycle.Outcome, error)
	ValidatePassword(ctx context.Context, keyringID string, fpr models.Fingerprint, candidate []byte) (bool, error)

	GetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error)
	SetSyncStatus(ctx context.Context, keyringID string, fpr models.Fingerprint, sync bool) (*models.KeyServerResult, error)

	ListKeyrings(ctx context.Context) ([]*models.Keyring, error)
	CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error)
	DeleteKeyring(ctx context.Context, keyringID string) error
	SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error
	GetActiveKeyring(ctx context.Context) (string, error)
	SetActiveKeyring(ctx context.Context, keyringID string) error
}

var _ Backend = (*lifecycle.Controller)(nil)

// SecretReader reads passwords that are not unlock prompts.
type SecretReader interface {
	ReadSecret(label string) ([]byte, error)
}

// Session is one keyctl invocation's connection to the core.
type Session struct {
	Backend Backend
	Secrets SecretReader
	Close   func()
}

// Opener creates the session for a command.
type Opener func(cmd *cobra.Command, opts *Options) (*Session, error)

// Options are the persistent flags.
type Options struct {
	ConfigFile string
	Keyring    string
	Output     string
	Verbose    bool
}

// NewRootCommand builds the keyctl command tree.
// NewRootCommand 构建 keyctl 命令树。
func NewRootCommand(open Opener) *cobra.Command {
	opts := &Options{}
	rootCmd := &cobra.Command{
		Use:   "keyctl",
		Short: "Manage OpenPGP keyrings held by the key vault.",
		Long: `keyctl drives the key vault locally: it lists, generates, imports and edits
keys, manages keyrings and publishes keys on the key server. Private key
operations ask for the key password on the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.Output {
			case "text", "json":
				return nil
			default:
				return errors.ErrInvalidRequest(fmt.Sprintf("unsupported output %q", opts.Output))
			}
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.ConfigFile, "config", os.Getenv("KEYVAULT_CONFIG"), "path to the config file")
	flags.StringVarP(&opts.Keyring, "keyring", "k", "", "keyring id (default: the active keyring)")
	flags.StringVarP(&opts.Output, "output", "o", "text", "output format: text or json")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stdout")

	r := &runner{open: open, opts: opts}
	rootCmd.AddCommand(
		newKeysCommand(r),
		newKeyringCommand(r),
		newSyncCommand(r),
	)
	return rootCmd
}

// Execute is the main entry point for keyctl.
func Execute() {
	if err := NewRootCommand(OpenLocal).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describe(err))
		os.Exit(1)
	}
}

// OpenLocal builds the core in process from the configuration file.
func OpenLocal(cmd *cobra.Command, opts *Options) (*Session, error) {
	var log logger.Logger = logger.NewNoopLogger()
	startup := log
	if opts.Verbose {
		zl, err := monitoring.NewZapLogger(&config.LogConfig{Level: "debug", Format: "console"})
		if err != nil {
			return nil, err
		}
		log, startup = zl, zl
	}

	cfg, err := config.LoadConfig(opts.ConfigFile, startup)
	if err != nil {
		return nil, err
	}

	terminal := prompt.NewTerminal(cmd.InOrStdin(), cmd.ErrOrStderr())
	// Metrics stay unregistered for a one-shot command.
	core, err := app.Build(cmd.Context(), cfg, log, nil, terminal)
	if err != nil {
		return nil, err
	}
	return &Session{
		Backend: core.Controller,
		Secrets: terminal,
		Close: func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			core.Close(ctx)
		},
	}, nil
}

// runner opens the session and resolves the keyring for each command.
type runner struct {
	open Opener
	opts *Options
}

// call carries what one command invocation needs.
type call struct {
	ctx     context.Context
	cmd     *cobra.Command
	session *Session
	keyring string
	args    []string
	output  string
}

type action func(c *call) error

func (r *runner) run(fn action) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := r.open(cmd, r.opts)
		if err != nil {
			return err
		}
		if s.Close != nil {
			defer s.Close()
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		keyringID := r.opts.Keyring
		if keyringID == "" {
			if keyringID, err = s.Backend.GetActiveKeyring(ctx); err != nil {
				return err
			}
		}
		return fn(&call{
			ctx:     ctx,
			cmd:     cmd,
			session: s,
			keyring: keyringID,
			args:    args,
			output:  r.opts.Output,
		})
	}
}

func parseFingerprint(arg string) (models.Fingerprint, error) {
	fpr := models.NormalizeFingerprint(arg)
	if !utils.ValidateFingerprint(string(fpr)) {
		return "", errors.ErrInvalidRequest(fmt.Sprintf("invalid fingerprint %q", arg))
	}
	return fpr, nil
}

func describe(err error) string {
	if kvErr, ok := errors.AsKVError(err); ok {
		return fmt.Sprintf("%s [%s]", err.Error(), kvErr.Code())
	}
	return err.Error()
}

//Personal.AI order the ending

package cli

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/utils"
)

func newKeysCommand(r *runner) *cobra.Command {
	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "List, create and edit keys",
	}

	keysCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List the keys of the keyring",
			Args:  cobra.NoArgs,
			RunE: r.run(func(c *call) error {
				keys, err := c.session.Backend.ListKeys(c.ctx, c.keyring)
				if err != nil {
					return err
				}
				return c.keys(keys)
			}),
		},
		&cobra.Command{
			Use:   "show FINGERPRINT",
			Short: "Show one key",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				key, err := c.session.Backend.GetKeyDetails(c.ctx, c.keyring, fpr)
				if err != nil {
					return err
				}
				return c.key(key)
			}),
		},
		newExportCommand(r),
		newGenerateCommand(r),
		newImportCommand(r),
		newRemoveCommand(r),
		&cobra.Command{
			Use:   "revoke FINGERPRINT",
			Short: "Revoke a key pair",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				return c.report(c.session.Backend.RevokeKey(c.ctx, c.keyring, fpr))
			}),
		},
		newAddUserCommand(r),
		&cobra.Command{
			Use:   "remove-user FINGERPRINT USER_ID",
			Short: "Remove a user id from a key",
			Args:  cobra.ExactArgs(2),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				return c.report(c.session.Backend.RemoveUser(c.ctx, c.keyring, fpr, c.args[1]))
			}),
		},
		&cobra.Command{
			Use:   "revoke-user FINGERPRINT USER_ID",
			Short: "Revoke a user id of a key pair",
			Args:  cobra.ExactArgs(2),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				return c.report(c.session.Backend.RevokeUser(c.ctx, c.keyring, fpr, c.args[1]))
			}),
		},
		newSetExpiryCommand(r),
		&cobra.Command{
			Use:   "set-password FINGERPRINT",
			Short: "Change the password of a key pair",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				current, err := c.session.Secrets.ReadSecret("Current password")
				if err != nil {
					return err
				}
				defer wipe(current)
				next, err := newPassword(c.session.Secrets)
				if err != nil {
					return err
				}
				defer wipe(next)
				return c.report(c.session.Backend.SetPassword(c.ctx, c.keyring, fpr, current, next))
			}),
		},
		&cobra.Command{
			Use:   "check-password FINGERPRINT",
			Short: "Check a password against a key pair",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				candidate, err := c.session.Secrets.ReadSecret("Password")
				if err != nil {
					return err
				}
				defer wipe(candidate)
				valid, err := c.session.Backend.ValidatePassword(c.ctx, c.keyring, fpr, candidate)
				if err != nil {
					return err
				}
				if c.output == "json" {
					return c.json(map[string]bool{"valid": valid})
				}
				if !valid {
					return errors.ErrInvalidCredential(string(fpr))
				}
				c.printf("Password is correct.\n")
				return nil
			}),
		},
	)
	return keysCmd
}

func newExportCommand(r *runner) *cobra.Command {
	var export string
	cmd := &cobra.Command{
		Use:   "export FINGERPRINT...",
		Short: "Print keys in ASCII armor",
		Args:  cobra.MinimumNArgs(1),
		RunE: r.run(func(c *call) error {
			kind := models.ArmoredExport(export)
			switch kind {
			case models.ExportPublic, models.ExportPrivate, models.ExportAll:
			default:
				return errors.ErrInvalidRequest("--type must be pub, priv or all")
			}
			fprs := make([]models.Fingerprint, 0, len(c.args))
			for _, arg := range c.args {
				fpr, err := parseFingerprint(arg)
				if err != nil {
					return err
				}
				fprs = append(fprs, fpr)
			}
			armored, err := c.session.Backend.GetArmoredKeys(c.ctx, c.keyring, fprs, kind)
			if err != nil {
				return err
			}
			if c.output == "json" {
				return c.json(armored)
			}
			for _, a := range armored {
				if a.ArmoredPub != "" {
					c.printf("%s\n", strings.TrimRight(a.ArmoredPub, "\n"))
				}
				if a.ArmoredPriv != "" {
					c.printf("%s\n", strings.TrimRight(a.ArmoredPriv, "\n"))
				}
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&export, "type", string(models.ExportPublic), "what to export: pub, priv or all")
	return cmd
}

func newGenerateCommand(r *runner) *cobra.Command {
	var (
		user      models.UserID
		bits      int
		expiresAt string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key pair",
		Args:  cobra.NoArgs,
		RunE: r.run(func(c *call) error {
			expiry, err := utils.ParseOptionalTime(expiresAt)
			if err != nil {
				return errors.ErrInvalidRequest("--expires must be an RFC 3339 timestamp").WithCause(err)
			}
			if err := utils.ValidateStruct(&user); err != nil {
				return err
			}
			password, err := newPassword(c.session.Secrets)
			if err != nil {
				return err
			}
			defer wipe(password)

			key, err := c.session.Backend.GenerateKey(c.ctx, c.keyring, models.GenerateParams{
				Users:     []models.UserID{user},
				Password:  password,
				BitLength: bits,
				ExpiresAt: expiry,
			})
			if err != nil {
				return err
			}
			return c.key(key)
		}),
	}
	cmd.Flags().StringVar(&user.Name, "name", "", "user name")
	cmd.Flags().StringVar(&user.Email, "email", "", "user email")
	cmd.Flags().StringVar(&user.Comment, "comment", "", "user id comment")
	cmd.Flags().IntVar(&bits, "bits", 0, "RSA key size: 2048, 3072 or 4096 (default from config)")
	cmd.Flags().StringVar(&expiresAt, "expires", "", "expiry as RFC 3339 timestamp")
	return cmd
}

func newImportCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "import [FILE]",
		Short: "Import armored keys from FILE or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: r.run(func(c *call) error {
			var (
				data []byte
				err  error
			)
			if len(c.args) == 0 || c.args[0] == "-" {
				data, err = io.ReadAll(c.cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(c.args[0])
			}
			if err != nil {
				return errors.ErrInvalidRequest("failed to read armored keys").WithCause(err)
			}
			keys, err := c.session.Backend.ImportKeys(c.ctx, c.keyring, string(data))
			if err != nil {
				return err
			}
			return c.keys(keys)
		}),
	}
}

func newRemoveCommand(r *runner) *cobra.Command {
	var keyType string
	cmd := &cobra.Command{
		Use:   "remove FINGERPRINT",
		Short: "Remove a key, or only its private part",
		Args:  cobra.ExactArgs(1),
		RunE: r.run(func(c *call) error {
			kind := models.KeyType(keyType)
			if kind != models.KeyTypePublic && kind != models.KeyTypePrivate {
				return errors.ErrInvalidRequest("--type must be public or private")
			}
			fpr, err := parseFingerprint(c.args[0])
			if err != nil {
				return err
			}
			return c.report(c.session.Backend.RemoveKey(c.ctx, c.keyring, fpr, kind))
		}),
	}
	cmd.Flags().StringVar(&keyType, "type", string(models.KeyTypePublic), "public removes the whole key, private only the secret part")
	return cmd
}

func newAddUserCommand(r *runner) *cobra.Command {
	var user models.UserID
	cmd := &cobra.Command{
		Use:   "add-user FINGERPRINT",
		Short: "Add a user id to a key pair",
		Args:  cobra.ExactArgs(1),
		RunE: r.run(func(c *call) error {
			fpr, err := parseFingerprint(c.args[0])
			if err != nil {
				return err
			}
			if err := utils.ValidateStruct(&user); err != nil {
				return err
			}
			return c.report(c.session.Backend.AddUser(c.ctx, c.keyring, fpr, user))
		}),
	}
	cmd.Flags().StringVar(&user.Name, "name", "", "user name")
	cmd.Flags().StringVar(&user.Email, "email", "", "user email")
	cmd.Flags().StringVar(&user.Comment, "comment", "", "user id comment")
	return cmd
}

func newSetExpiryCommand(r *runner) *cobra.Command {
	var never bool
	cmd := &cobra.Command{
		Use:   "set-expiry FINGERPRINT [RFC3339]",
		Short: "Change the expiry date of a key pair",
		Args:  cobra.RangeArgs(1, 2),
		RunE: r.run(func(c *call) error {
			fpr, err := parseFingerprint(c.args[0])
			if err != nil {
				return err
			}
			if never == (len(c.args) == 2) {
				return errors.ErrInvalidRequest("give either an expiry date or --never")
			}
			var expiry *time.Time
			if !never {
				if expiry, err = utils.ParseOptionalTime(c.args[1]); err != nil {
					return errors.ErrInvalidRequest("expiry must be an RFC 3339 timestamp").WithCause(err)
				}
			}
			return c.report(c.session.Backend.SetExpiry(c.ctx, c.keyring, fpr, expiry))
		}),
	}
	cmd.Flags().BoolVar(&never, "never", false, "remove the expiry date")
	return cmd
}

func (c *call) report(o lifecycle.Outcome, err error) error {
	if err != nil {
		return err
	}
	return c.outcome(o)
}

func newPassword(secrets SecretReader) ([]byte, error) {
	first, err := secrets.ReadSecret("New password")
	if err != nil {
		return nil, err
	}
	second, err := secrets.ReadSecret("Repeat new password")
	if err != nil {
		wipe(first)
		return nil, err
	}
	defer wipe(second)
	if string(first) != string(second) {
		wipe(first)
		return nil, errors.ErrInvalidRequest("passwords do not match")
	}
	return first, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

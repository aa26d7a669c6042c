package cli

import (
	"github.com/spf13/cobra"

	"github.com/turtacn/keyvault/internal/domain/models"
)

func newSyncCommand(r *runner) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Publish keys on the key server or withdraw them",
	}

	set := func(want bool) action {
		return func(c *call) error {
			fpr, err := parseFingerprint(c.args[0])
			if err != nil {
				return err
			}
			result, err := c.session.Backend.SetSyncStatus(c.ctx, c.keyring, fpr, want)
			if err != nil {
				return err
			}
			if c.output == "json" {
				return c.json(result)
			}
			if result.Message != "" {
				c.printf("%s: %s\n", result.Operation, result.Message)
			} else {
				c.printf("%s requested for %s\n", result.Operation, fpr)
			}
			return nil
		}
	}

	syncCmd.AddCommand(
		&cobra.Command{
			Use:   "status FINGERPRINT",
			Short: "Show whether the key server matches the publication intent",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				status, err := c.session.Backend.GetSyncStatus(c.ctx, c.keyring, fpr)
				if err != nil {
					return err
				}
				if c.output == "json" {
					return c.json(status)
				}
				c.printf("%s\n", describeSync(status))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "publish FINGERPRINT",
			Short: "Upload the public key to the key server",
			Args:  cobra.ExactArgs(1),
			RunE:  r.run(set(true)),
		},
		&cobra.Command{
			Use:   "withdraw FINGERPRINT",
			Short: "Ask the key server to remove the key",
			Args:  cobra.ExactArgs(1),
			RunE:  r.run(set(false)),
		},
	)
	return syncCmd
}

func describeSync(s models.SyncStatus) string {
	switch s {
	case models.SyncStatusSynced:
		return "published"
	case models.SyncStatusUploadPending:
		return "publication pending"
	case models.SyncStatusRemovalPending:
		return "removal pending"
	default:
		return "not published"
	}
}

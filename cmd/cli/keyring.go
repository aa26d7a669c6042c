package cli

import (
	"github.com/spf13/cobra"
)

func newKeyringCommand(r *runner) *cobra.Command {
	keyringCmd := &cobra.Command{
		Use:   "keyring",
		Short: "Manage keyrings",
	}

	keyringCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List keyrings; the active one is marked",
			Args:  cobra.NoArgs,
			RunE: r.run(func(c *call) error {
				keyrings, err := c.session.Backend.ListKeyrings(c.ctx)
				if err != nil {
					return err
				}
				active, err := c.session.Backend.GetActiveKeyring(c.ctx)
				if err != nil {
					return err
				}
				return c.keyrings(keyrings, active)
			}),
		},
		&cobra.Command{
			Use:   "create ID",
			Short: "Create an empty keyring",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				keyring, err := c.session.Backend.CreateKeyring(c.ctx, c.args[0])
				if err != nil {
					return err
				}
				if c.output == "json" {
					return c.json(keyring)
				}
				c.printf("Created keyring %s\n", keyring.ID)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a keyring and every key in it",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				if err := c.session.Backend.DeleteKeyring(c.ctx, c.args[0]); err != nil {
					return err
				}
				c.printf("Deleted keyring %s\n", c.args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "use ID",
			Short: "Make a keyring the active one",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				if err := c.session.Backend.SetActiveKeyring(c.ctx, c.args[0]); err != nil {
					return err
				}
				c.printf("Active keyring is now %s\n", c.args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set-default FINGERPRINT",
			Short: "Set the default key of the keyring",
			Args:  cobra.ExactArgs(1),
			RunE: r.run(func(c *call) error {
				fpr, err := parseFingerprint(c.args[0])
				if err != nil {
					return err
				}
				if err := c.session.Backend.SetDefaultKey(c.ctx, c.keyring, fpr); err != nil {
					return err
				}
				c.printf("Default key of %s is now %s\n", c.keyring, fpr)
				return nil
			}),
		},
	)
	return keyringCmd
}

package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/turtacn/keyvault/internal/application/lifecycle"
	"github.com/turtacn/keyvault/internal/domain/models"
)

func (c *call) json(v interface{}) error {
	enc := json.NewEncoder(c.cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *call) printf(format string, a ...interface{}) {
	fmt.Fprintf(c.cmd.OutOrStdout(), format, a...)
}

// outcome reports a lifecycle operation. A dismissed password prompt is not
// an error for the command.
func (c *call) outcome(o lifecycle.Outcome) error {
	if c.output == "json" {
		return c.json(o)
	}
	if o.Cancelled() {
		fmt.Fprintln(c.cmd.ErrOrStderr(), "Cancelled.")
		return nil
	}
	c.printf("%s %s: %s\n", o.Operation, o.Fingerprint, o.Status)
	return nil
}

func (c *call) keys(keys []*models.KeyDetails) error {
	if c.output == "json" {
		return c.json(keys)
	}
	w := tabwriter.NewWriter(c.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINGERPRINT\tTYPE\tSTATUS\tDEFAULT\tEXPIRES\tUSER")
	for _, k := range keys {
		def := ""
		if k.Default {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", k.Fingerprint, k.Type, k.Status, def, expires(k.ExpiresAt), primaryUser(k.KeyRecord))
	}
	return w.Flush()
}

func (c *call) key(k *models.KeyDetails) error {
	if c.output == "json" {
		return c.json(k)
	}
	c.printf("Fingerprint: %s\n", k.Fingerprint)
	c.printf("Key ID:      %s\n", k.KeyID)
	c.printf("Type:        %s\n", k.Type)
	c.printf("Status:      %s\n", k.Status)
	c.printf("Algorithm:   %s %d\n", k.Algorithm, k.BitLength)
	c.printf("Created:     %s\n", k.KeyCreatedAt.Format(time.RFC3339))
	c.printf("Expires:     %s\n", expires(k.ExpiresAt))
	for _, u := range k.Users {
		var flags []string
		if u.Primary {
			flags = append(flags, "primary")
		}
		if u.Revoked {
			flags = append(flags, "revoked")
		}
		line := "User:        " + u.UserID
		if len(flags) > 0 {
			line += " [" + strings.Join(flags, ", ") + "]"
		}
		c.printf("%s\n", line)
	}
	return nil
}

func (c *call) keyrings(keyrings []*models.Keyring, active string) error {
	if c.output == "json" {
		return c.json(keyrings)
	}
	w := tabwriter.NewWriter(c.cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTIVE\tDEFAULT KEY")
	for _, k := range keyrings {
		mark := ""
		if k.ID == active {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", k.ID, mark, k.DefaultKey)
	}
	return w.Flush()
}

func expires(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format("2006-01-02")
}

func primaryUser(k *models.KeyRecord) string {
	if k == nil || len(k.Users) == 0 {
		return ""
	}
	for _, u := range k.Users {
		if u.Primary {
			return u.UserID
		}
	}
	return k.Users[0].UserID
}

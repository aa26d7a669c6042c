package prompt

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
)

var _ service.PasswordPrompter = (*Terminal)(nil)

// Terminal asks for passwords on the controlling terminal with echo off.
// When input is not a terminal it reads one line per prompt. An empty answer
// or end of input dismisses the prompt.
type Terminal struct {
	in  io.Reader
	out io.Writer
	fd  int
	tty bool

	lines *bufio.Reader
}

// NewTerminal creates a Terminal. A nil in or out uses stdin or stderr.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	t := &Terminal{in: in, out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.fd = int(f.Fd())
		t.tty = true
	} else {
		t.lines = bufio.NewReader(in)
	}
	return t
}

type readResult struct {
	password []byte
	err      error
}

// PromptPassword prints the dialog text and reads the answer. A cancelled
// ctx abandons the read.
func (t *Terminal) PromptPassword(ctx context.Context, req models.PromptRequest) ([]byte, error) {
	if req.LastError != "" {
		fmt.Fprintln(t.out, "Wrong password, try again.")
	}
	fmt.Fprint(t.out, dialogText(req))

	done := make(chan readResult, 1)
	go func() {
		pw, err := t.read()
		done <- readResult{password: pw, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(t.out)
		return nil, ctx.Err()
	case r := <-done:
		if r.err == io.EOF || (r.err == nil && len(r.password) == 0) {
			return nil, errors.ErrUserCancelled()
		}
		if r.err != nil {
			return nil, errors.ErrInternal("failed to read password").WithCause(r.err)
		}
		return r.password, nil
	}
}

// ReadSecret prints label and reads one secret that is not tied to a key,
// such as the password for a key about to be generated.
func (t *Terminal) ReadSecret(label string) ([]byte, error) {
	fmt.Fprintf(t.out, "%s: ", label)
	pw, err := t.read()
	if err == io.EOF || (err == nil && len(pw) == 0) {
		return nil, errors.ErrUserCancelled()
	}
	if err != nil {
		return nil, errors.ErrInternal("failed to read password").WithCause(err)
	}
	return pw, nil
}

func (t *Terminal) read() ([]byte, error) {
	if t.tty {
		pw, err := term.ReadPassword(t.fd)
		fmt.Fprintln(t.out)
		return pw, err
	}
	line, err := t.lines.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

var reasonText = map[constants.ReasonCode]string{
	constants.ReasonRevoke:      "revoke the key",
	constants.ReasonRevokeUser:  "revoke the user id",
	constants.ReasonAddUser:     "add a user id",
	constants.ReasonSetExpiry:   "change the expiry date",
	constants.ReasonSetPassword: "change the password",
	constants.ReasonDecrypt:     "decrypt",
	constants.ReasonSign:        "sign",
}

func dialogText(req models.PromptRequest) string {
	var b strings.Builder
	b.WriteString("Enter the password")
	if req.UserID != "" {
		fmt.Fprintf(&b, " for %s", req.UserID)
	}
	fmt.Fprintf(&b, " (%s)", req.Fingerprint.KeyID())
	if text, ok := reasonText[req.Reason]; ok {
		fmt.Fprintf(&b, " to %s", text)
	}
	if req.Attempt > 1 {
		fmt.Fprintf(&b, " [attempt %d]", req.Attempt)
	}
	b.WriteString(": ")
	return b.String()
}

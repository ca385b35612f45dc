package listener

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gotd/td/telegram/auth"
)

// stdinAuthenticator prompts on stdin for the login code — this service
// runs as a long-lived daemon, so authentication happens once at first
// boot (or whenever the session file is missing/expired) while an
// operator is attached to the terminal. auth.NoSignUp rejects sign-up
// attempts: this is a pre-existing account, not account creation.
type stdinAuthenticator struct {
	auth.NoSignUp
	phone string
}

func (a stdinAuthenticator) Phone(_ context.Context) (string, error) {
	return a.phone, nil
}

func (a stdinAuthenticator) Password(_ context.Context) (string, error) {
	fmt.Fprint(os.Stderr, "two-factor password: ")
	return readLine()
}

func (a stdinAuthenticator) Code(_ context.Context, _ *auth.SentCode) (string, error) {
	fmt.Fprint(os.Stderr, "login code: ")
	return readLine()
}

func (a stdinAuthenticator) AcceptTermsOfService(_ context.Context, tos auth.TermsOfService) error {
	return nil
}

func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// authenticate runs the gotd/td auth flow against the session storage
// already wired into the client; if a valid session already exists, the
// flow is a no-op.
func (l *Listener) authenticate(ctx context.Context, phone string) error {
	flow := auth.NewFlow(stdinAuthenticator{phone: phone}, auth.SendCodeOptions{})
	return l.client.Auth().IfNecessary(ctx, flow)
}

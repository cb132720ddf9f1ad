package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const ONBOARDING_MODE_SETUP_LINK = "setup_link"
const ONBOARDING_MODE_TEMP_PASSWORD = "temp_password"

// Mailer envia o email de onboarding pela CLI do gog (gmail send).
// Modo setup_link reaproveita o invite URL do n8n quando existe; modo
// temp_password gera uma senha nova A CADA envio — retry reenviando é senha
// nova na caixa do usuário.
type Mailer struct {
	Account         string
	KeyringPassword string
	Mode            string
	SetupLink       string        // fallback quando o n8n não devolve invite URL
	SendTimeout     time.Duration // timeout do subprocess

	// runCommand existe para teste; default executa o gog de verdade.
	runCommand func(ctx context.Context, env []string, args ...string) error
}

func NewMailer(account, keyringPassword, mode, setupLink string, sendTimeout time.Duration) *Mailer {
	return &Mailer{
		Account:         account,
		KeyringPassword: keyringPassword,
		Mode:            mode,
		SetupLink:       setupLink,
		SendTimeout:     sendTimeout,
		runCommand:      runGog,
	}
}

// Send monta o corpo conforme o modo e dispara o gog. Falha é retryable no
// worker, nunca engolida.
func (m *Mailer) Send(ctx context.Context, email, inviteURL string) error {
	var body string
	if m.Mode == ONBOARDING_MODE_TEMP_PASSWORD {
		body = "Welcome to n8n.\n\n" +
			"Temporary password: " + RandomString(16) + "\n" +
			"Please change it immediately after first login."
	} else {
		link := inviteURL
		if link == "" {
			link = m.SetupLink
		}
		body = "Welcome to n8n.\n\n" +
			"Your enterprise chat guest account has been provisioned.\n" +
			"Please set up/sign in here: " + link + "\n\n" +
			"If you cannot sign in, contact the administrator."
	}

	ctx, cancel := context.WithTimeout(ctx, m.SendTimeout)
	defer cancel()

	env := os.Environ()
	if m.KeyringPassword != "" {
		env = append(env, "GOG_KEYRING_PASSWORD="+m.KeyringPassword)
	}

	run := m.runCommand
	if run == nil {
		run = runGog
	}
	return run(ctx, env,
		"--account", m.Account,
		"--no-input",
		"gmail", "send",
		"--to", email,
		"--subject", "n8n account onboarding",
		"--body", body,
		"--plain",
	)
}

func runGog(ctx context.Context, env []string, args ...string) error {
	cmd := exec.CommandContext(ctx, "gog", args...)
	cmd.Env = env

	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if len(detail) > 300 {
			detail = detail[:300]
		}
		return fmt.Errorf("gog send failed: %v %s", err, detail)
	}
	return nil
}

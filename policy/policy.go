package policy

import "strings"

// Deny reasons gravadas no audit trail (events.reason / mappings.reason).
// Slack chama o tenant de "team", Teams de "tenant"; o código muda, a checagem
// é a mesma.
const (
	ReasonTeamNotAllowed   = "team_not_allowed"
	ReasonTenantNotAllowed = "tenant_not_allowed"
	ReasonUserNotGuest     = "user_not_guest"
	ReasonEmailMissing     = "email_missing"
	ReasonDomainNotAllowed = "domain_not_allowed"
)

// Identity é o registro canônico extraído de um evento, já normalizado.
type Identity struct {
	ExternalUserID string
	TenantOrTeamID string
	Email          string
	IsGuest        bool
}

// Rules é imutável: montada a partir da Configuration no boot e compartilhada.
type Rules struct {
	// AllowedTenants vazio = qualquer tenant/team passa.
	AllowedTenants map[string]struct{}
	// AllowedDomains vazio = qualquer domínio passa. Chaves em minúsculas.
	AllowedDomains map[string]struct{}
	RequireGuest   bool
	// TenantDeniedReason: ReasonTeamNotAllowed (slack) ou
	// ReasonTenantNotAllowed (teams).
	TenantDeniedReason string
}

type Decision struct {
	Admit  bool
	Reason string
}

func admit() Decision { return Decision{Admit: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluate is a pure function: no I/O, deterministic. The check order is
// fixed (tenant → guest → email present → domain) because the first failing
// check's reason is what lands in the audit trail.
func Evaluate(rules Rules, id Identity) Decision {
	if len(rules.AllowedTenants) > 0 {
		if _, ok := rules.AllowedTenants[id.TenantOrTeamID]; !ok {
			return deny(rules.TenantDeniedReason)
		}
	}

	if rules.RequireGuest && !id.IsGuest {
		return deny(ReasonUserNotGuest)
	}

	if id.Email == "" {
		return deny(ReasonEmailMissing)
	}
	if len(rules.AllowedDomains) > 0 {
		if _, ok := rules.AllowedDomains[EmailDomain(id.Email)]; !ok {
			return deny(ReasonDomainNotAllowed)
		}
	}

	return admit()
}

// NormalizeEmail trims and lowercases; empty result means "missing".
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lowercased part after the last "@".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return strings.ToLower(email)
	}
	return strings.ToLower(email[at+1:])
}

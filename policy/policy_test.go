package policy

import "testing"

func set(values ...string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func slackRules() Rules {
	return Rules{
		AllowedTenants:     set("T-OK"),
		AllowedDomains:     set("allowed.com"),
		RequireGuest:       true,
		TenantDeniedReason: ReasonTeamNotAllowed,
	}
}

func TestEvaluateAdmits(t *testing.T) {
	dec := Evaluate(slackRules(), Identity{
		ExternalUserID: "U1",
		TenantOrTeamID: "T-OK",
		Email:          "a@allowed.com",
		IsGuest:        true,
	})
	if !dec.Admit {
		t.Fatalf("expected admit, got deny(%s)", dec.Reason)
	}
}

func TestEvaluateFirstFailingCheckWins(t *testing.T) {
	// falha em tenant E domínio: a razão tem que ser a do tenant (primeira)
	dec := Evaluate(slackRules(), Identity{
		TenantOrTeamID: "T-BAD",
		Email:          "a@blocked.com",
		IsGuest:        true,
	})
	if dec.Admit {
		t.Fatalf("expected deny")
	}
	if dec.Reason != ReasonTeamNotAllowed {
		t.Fatalf("expected %s, got %s", ReasonTeamNotAllowed, dec.Reason)
	}
}

func TestEvaluateGuestRequired(t *testing.T) {
	dec := Evaluate(slackRules(), Identity{
		TenantOrTeamID: "T-OK",
		Email:          "a@allowed.com",
		IsGuest:        false,
	})
	if dec.Reason != ReasonUserNotGuest {
		t.Fatalf("expected %s, got %s", ReasonUserNotGuest, dec.Reason)
	}

	rules := slackRules()
	rules.RequireGuest = false
	dec = Evaluate(rules, Identity{TenantOrTeamID: "T-OK", Email: "a@allowed.com"})
	if !dec.Admit {
		t.Fatalf("guest check disabled should admit, got deny(%s)", dec.Reason)
	}
}

func TestEvaluateEmailChecks(t *testing.T) {
	dec := Evaluate(slackRules(), Identity{TenantOrTeamID: "T-OK", IsGuest: true})
	if dec.Reason != ReasonEmailMissing {
		t.Fatalf("expected %s, got %s", ReasonEmailMissing, dec.Reason)
	}

	dec = Evaluate(slackRules(), Identity{TenantOrTeamID: "T-OK", IsGuest: true, Email: "a@blocked.com"})
	if dec.Reason != ReasonDomainNotAllowed {
		t.Fatalf("expected %s, got %s", ReasonDomainNotAllowed, dec.Reason)
	}

	// domínio é comparado caso-insensível
	dec = Evaluate(slackRules(), Identity{TenantOrTeamID: "T-OK", IsGuest: true, Email: "a@ALLOWED.com"})
	if !dec.Admit {
		t.Fatalf("domain match must be case-insensitive, got deny(%s)", dec.Reason)
	}
}

func TestEvaluateEmptyListsAllowAll(t *testing.T) {
	rules := Rules{RequireGuest: true, TenantDeniedReason: ReasonTenantNotAllowed}
	dec := Evaluate(rules, Identity{TenantOrTeamID: "any", Email: "x@anywhere.io", IsGuest: true})
	if !dec.Admit {
		t.Fatalf("empty allow-lists should admit, got deny(%s)", dec.Reason)
	}
}

func TestNormalizeAndDomain(t *testing.T) {
	if got := NormalizeEmail("  A@Allowed.COM "); got != "a@allowed.com" {
		t.Fatalf("normalize: got %q", got)
	}
	if got := EmailDomain("a@b@Allowed.COM"); got != "allowed.com" {
		t.Fatalf("domain after last @: got %q", got)
	}
}

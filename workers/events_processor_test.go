package workers

import (
	"context"
	"errors"
	"testing"

	"provisioner/config"
	"provisioner/models"
	"provisioner/policy"
	"provisioner/store"
	"provisioner/tools"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

/************************************************
/**** MARK: FAKES ****/
/************************************************/

type fakeDirectory struct {
	user  *tools.SlackUser
	err   error
	calls int
}

func (f *fakeDirectory) UserInfo(ctx context.Context, userID string) (*tools.SlackUser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeProvisioner struct {
	result *tools.ProvisionedUser
	err    error
	calls  int
}

func (f *fakeProvisioner) CreateUser(ctx context.Context, email string) (*tools.ProvisionedUser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeMailer struct {
	err   error
	calls int
	last  string
}

func (f *fakeMailer) Send(ctx context.Context, email, inviteURL string) error {
	f.calls++
	f.last = email
	return f.err
}

/************************************************
/**** MARK: HELPERS ****/
/************************************************/

type testEnv struct {
	p         *Processor
	database  *gorm.DB
	events    *store.EventStore
	mappings  *store.MappingStore
	directory *fakeDirectory
	n8n       *fakeProvisioner
	mailer    *fakeMailer
}

func newTestEnv(t *testing.T, cfg config.Configuration) *testEnv {
	t.Helper()

	database, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	database.DB().SetMaxOpenConns(1)
	database.AutoMigrate(&models.Event{}, &models.Mapping{})
	t.Cleanup(func() { database.Close() })

	env := &testEnv{
		database: database,
		events:   store.NewEventStore(database),
		mappings: store.NewMappingStore(database),
		directory: &fakeDirectory{user: &tools.SlackUser{
			ID:           "U1",
			IsRestricted: true,
		}},
		n8n:    &fakeProvisioner{result: &tools.ProvisionedUser{ID: "n8n-1", InviteAcceptURL: "https://n8n.example.com/invite/x", Created: true}},
		mailer: &fakeMailer{},
	}
	env.directory.user.Profile.Email = "a@allowed.com"

	env.p = NewProcessor(database, cfg)
	env.p.slack = env.directory
	env.p.n8n = env.n8n
	env.p.mailer = env.mailer
	return env
}

func baseConfig() config.Configuration {
	return config.Configuration{
		AutoProvisionEnabled:          true,
		RequireSlackEmailVerification: true,
		AllowedEmailDomains:           map[string]struct{}{"allowed.com": {}},
		AllowedSlackTeamIDs:           map[string]struct{}{},
		AllowedTeamsTenantIDs:         map[string]struct{}{},
		TeamsRequireGuestOnly:         true,
	}
}

const slackJoinPayload = `{"team_id":"T1","event":{"type":"team_join","user":{"id":"U1"}}}`

func (e *testEnv) enqueue(t *testing.T, id, provider, payload string) {
	t.Helper()
	if _, err := e.events.Enqueue(&models.Event{ID: id, Provider: provider, Payload: payload}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func (e *testEnv) event(t *testing.T, id string) *models.Event {
	t.Helper()
	ev, err := e.events.GetByID(id)
	if err != nil {
		t.Fatalf("get event %s: %v", id, err)
	}
	return ev
}

func (e *testEnv) mapping(t *testing.T, provider, externalID string) *models.Mapping {
	t.Helper()
	m, err := e.mappings.Get(provider, externalID)
	if err != nil {
		t.Fatalf("get mapping %s/%s: %v", provider, externalID, err)
	}
	return m
}

/************************************************
/**** MARK: SCENARIOS ****/
/************************************************/

func TestSlackGuestProvisioned(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_DONE || ev.Reason != "provisioned" {
		t.Fatalf("expected done/provisioned, got %s/%s", ev.Status, ev.Reason)
	}

	m := env.mapping(t, "slack", "U1")
	if m.Status != models.MAPPING_STATUS_CREATED || m.N8NUserID != "n8n-1" || m.Email != "a@allowed.com" {
		t.Fatalf("unexpected mapping: %+v", m)
	}
	if env.n8n.calls != 1 || env.mailer.calls != 1 {
		t.Fatalf("expected one provision and one mail, got %d/%d", env.n8n.calls, env.mailer.calls)
	}
}

func TestSlackExistingAccount(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.n8n.result = &tools.ProvisionedUser{ID: "exists", Created: false}
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	if m := env.mapping(t, "slack", "U1"); m.Status != models.MAPPING_STATUS_EXISTS {
		t.Fatalf("already-exists must map to exists, got %s", m.Status)
	}
	if env.event(t, "ev-1").Status != models.EVENT_STATUS_DONE {
		t.Fatalf("already-exists is success, not failure")
	}
}

func TestSlackDomainDenied(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.directory.user.Profile.Email = "a@blocked.com"
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_DENIED || ev.Reason != policy.ReasonDomainNotAllowed {
		t.Fatalf("expected denied/domain_not_allowed, got %s/%s", ev.Status, ev.Reason)
	}
	if m := env.mapping(t, "slack", "U1"); m.Status != models.MAPPING_STATUS_DENIED || m.Reason != policy.ReasonDomainNotAllowed {
		t.Fatalf("unexpected mapping: %+v", m)
	}
	if env.n8n.calls != 0 || env.mailer.calls != 0 {
		t.Fatalf("denied identity must not touch n8n or mail")
	}
}

func TestSlackTeamDeniedBeforeLookup(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowedSlackTeamIDs = map[string]struct{}{"T-OTHER": {}}
	env := newTestEnv(t, cfg)
	// domínio também falharia; a razão tem que ser a do team (primeira checagem)
	env.directory.user.Profile.Email = "a@blocked.com"
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Reason != policy.ReasonTeamNotAllowed {
		t.Fatalf("expected team_not_allowed, got %s", ev.Reason)
	}
	if env.directory.calls != 0 {
		t.Fatalf("disallowed team must not hit users.info")
	}
	if m := env.mapping(t, "slack", "U1"); m.Status != models.MAPPING_STATUS_DENIED {
		t.Fatalf("unexpected mapping: %+v", m)
	}
}

func TestSlackNotGuestDenied(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.directory.user.IsRestricted = false
	env.directory.user.IsUltraRestricted = false
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	if ev := env.event(t, "ev-1"); ev.Reason != policy.ReasonUserNotGuest {
		t.Fatalf("expected user_not_guest, got %s", ev.Reason)
	}
}

func TestSlackMissingUserID(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, `{"team_id":"T1","event":{"type":"team_join"}}`)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_DENIED || ev.Reason != "missing_user_id" {
		t.Fatalf("expected denied/missing_user_id, got %s/%s", ev.Status, ev.Reason)
	}
	// sem identidade não há mapping
	if _, err := env.mappings.Get("slack", ""); err == nil {
		t.Fatalf("no mapping should be written without a user id")
	}
}

func TestSlackVerificationFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.directory.err = errors.New("slack down")
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_FAILED || ev.Attempts != 1 || ev.Reason != "slack_verify_failed" {
		t.Fatalf("expected retryable failure, got %+v", ev)
	}

	// lookup volta: o mesmo evento é retomado no ciclo seguinte
	env.directory.err = nil
	env.p.ProcessDueEvents()

	if ev := env.event(t, "ev-1"); ev.Status != models.EVENT_STATUS_DONE {
		t.Fatalf("expected done after retry, got %s/%s", ev.Status, ev.Reason)
	}
}

func TestRetryCeiling(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.directory.err = errors.New("slack down")
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	for i := 0; i < models.EVENT_MAX_ATTEMPTS+1; i++ {
		env.p.ProcessDueEvents()
	}

	ev := env.event(t, "ev-1")
	if ev.Attempts != models.EVENT_MAX_ATTEMPTS {
		t.Fatalf("expected attempts capped at %d, got %d", models.EVENT_MAX_ATTEMPTS, ev.Attempts)
	}
	if ev.Status != models.EVENT_STATUS_FAILED {
		t.Fatalf("capped event must stay failed, got %s", ev.Status)
	}
	if env.directory.calls != models.EVENT_MAX_ATTEMPTS {
		t.Fatalf("6th cycle must not pick the event up, got %d calls", env.directory.calls)
	}
}

func TestDryRunRecordsWithoutActing(t *testing.T) {
	cfg := baseConfig()
	cfg.AutoProvisionEnabled = false
	env := newTestEnv(t, cfg)
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_DONE || ev.Reason != "dry_run" {
		t.Fatalf("expected done/dry_run, got %s/%s", ev.Status, ev.Reason)
	}
	m := env.mapping(t, "slack", "U1")
	if m.Status != models.MAPPING_STATUS_DRY_RUN || m.Reason != "auto_provision_disabled" {
		t.Fatalf("unexpected mapping: %+v", m)
	}
	if env.n8n.calls != 0 || env.mailer.calls != 0 {
		t.Fatalf("dry run must never call n8n or mailer")
	}
}

func TestTeamsNotGuestDenied(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	payload := `{"value":[{"tenantId":"TEN1","resourceData":{"id":"guest-1","userType":"Member","mail":"m@allowed.com"}}]}`
	env.enqueue(t, "teams-1", models.EVENT_PROVIDER_TEAMS, payload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "teams-1")
	if ev.Status != models.EVENT_STATUS_DENIED || ev.Reason != policy.ReasonUserNotGuest {
		t.Fatalf("expected denied/user_not_guest, got %s/%s", ev.Status, ev.Reason)
	}
	if m := env.mapping(t, "teams", "guest-1"); m.Status != models.MAPPING_STATUS_DENIED {
		t.Fatalf("unexpected mapping: %+v", m)
	}
}

func TestTeamsGuestProvisioned(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	payload := `{"value":[{"tenantId":"TEN1","resourceData":{"id":"guest-1","userType":"Guest","userPrincipalName":"G@Allowed.com"}}]}`
	env.enqueue(t, "teams-1", models.EVENT_PROVIDER_TEAMS, payload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "teams-1")
	if ev.Status != models.EVENT_STATUS_DONE || ev.Reason != "provisioned" {
		t.Fatalf("expected done/provisioned, got %s/%s", ev.Status, ev.Reason)
	}
	m := env.mapping(t, "teams", "guest-1")
	if m.Email != "g@allowed.com" {
		t.Fatalf("email must be normalized, got %q", m.Email)
	}
	if m.TenantOrTeamID != "TEN1" {
		t.Fatalf("unexpected tenant: %q", m.TenantOrTeamID)
	}
	if env.directory.calls != 0 {
		t.Fatalf("teams flow must not call slack users.info")
	}
}

func TestTeamsTenantDenied(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowedTeamsTenantIDs = map[string]struct{}{"TEN-OTHER": {}}
	env := newTestEnv(t, cfg)
	payload := `{"value":[{"tenantId":"TEN1","resourceData":{"id":"guest-1","userType":"Guest","mail":"g@allowed.com"}}]}`
	env.enqueue(t, "teams-1", models.EVENT_PROVIDER_TEAMS, payload)

	env.p.ProcessDueEvents()

	if ev := env.event(t, "teams-1"); ev.Reason != policy.ReasonTenantNotAllowed {
		t.Fatalf("expected tenant_not_allowed, got %s", ev.Reason)
	}
}

func TestTeamsEmptyBatchDenied(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.enqueue(t, "teams-1", models.EVENT_PROVIDER_TEAMS, `{"value":[]}`)

	env.p.ProcessDueEvents()

	if ev := env.event(t, "teams-1"); ev.Reason != "missing_items" {
		t.Fatalf("expected missing_items, got %s", ev.Reason)
	}
}

func TestUnknownProviderDenied(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.enqueue(t, "ev-1", "zoom", "{}")

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_DENIED || ev.Reason != "unknown_provider" {
		t.Fatalf("expected denied/unknown_provider, got %s/%s", ev.Status, ev.Reason)
	}
}

func TestProvisionFailureIsRetryable(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.n8n.err = errors.New("n8n create user failed: 500")
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)

	env.p.ProcessDueEvents()

	ev := env.event(t, "ev-1")
	if ev.Status != models.EVENT_STATUS_FAILED || ev.Attempts != 1 {
		t.Fatalf("expected failed attempt, got %+v", ev)
	}
	if env.mailer.calls != 0 {
		t.Fatalf("mail must not go out when provisioning failed")
	}
}

func TestReplayUnderNewIDIsSafe(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.enqueue(t, "ev-1", models.EVENT_PROVIDER_SLACK, slackJoinPayload)
	env.p.ProcessDueEvents()

	// mesmo payload, id novo: evento novo, mas o mapping converge na mesma linha
	env.enqueue(t, "ev-2", models.EVENT_PROVIDER_SLACK, slackJoinPayload)
	env.p.ProcessDueEvents()

	if ev := env.event(t, "ev-2"); ev.Status != models.EVENT_STATUS_DONE {
		t.Fatalf("replayed payload must process cleanly, got %s/%s", ev.Status, ev.Reason)
	}

	list, err := env.mappings.List("slack", 10)
	if err != nil {
		t.Fatalf("list mappings: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("replay must not duplicate mapping rows, got %d", len(list))
	}
}

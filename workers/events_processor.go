package workers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"provisioner/config"
	"provisioner/models"
	"provisioner/policy"
	"provisioner/store"
	"provisioner/tools"

	"github.com/jinzhu/gorm"
)

const pollInterval = 2 * time.Second
const batchSize = 10
const eventTimeout = 60 * time.Second

// Interfaces pequenas pros colaboradores externos; produção usa os clients
// de tools, testes injetam fakes.
type SlackDirectory interface {
	UserInfo(ctx context.Context, userID string) (*tools.SlackUser, error)
}

type UserProvisioner interface {
	CreateUser(ctx context.Context, email string) (*tools.ProvisionedUser, error)
}

type OnboardingSender interface {
	Send(ctx context.Context, email, inviteURL string) error
}

// Processor drena o event store: decodifica, aplica política e dispara o
// provisionamento. Roda UMA instância — o dequeue é leitura simples, sem
// claim atômico; duas instâncias processariam o mesmo evento duas vezes.
type Processor struct {
	cfg      config.Configuration
	events   *store.EventStore
	mappings *store.MappingStore

	slack  SlackDirectory
	n8n    UserProvisioner
	mailer OnboardingSender

	slackRules policy.Rules
	teamsRules policy.Rules
}

func NewProcessor(database *gorm.DB, cfg config.Configuration) *Processor {
	return &Processor{
		cfg:      cfg,
		events:   store.NewEventStore(database),
		mappings: store.NewMappingStore(database),
		slack:    tools.NewSlackClient(cfg.SlackBotToken),
		n8n:      tools.NewN8NClient(cfg.N8NBaseURL, cfg.N8NAPIKey, cfg.N8NUserCreatePath),
		mailer: tools.NewMailer(cfg.GogAccount, cfg.GogKeyringPassword,
			cfg.OnboardingMode, cfg.OnboardingSetupLink,
			time.Duration(cfg.GogSendTimeout)*time.Second),
		slackRules: policy.Rules{
			AllowedTenants:     cfg.AllowedSlackTeamIDs,
			AllowedDomains:     cfg.AllowedEmailDomains,
			RequireGuest:       true,
			TenantDeniedReason: policy.ReasonTeamNotAllowed,
		},
		teamsRules: policy.Rules{
			AllowedTenants:     cfg.AllowedTeamsTenantIDs,
			AllowedDomains:     cfg.AllowedEmailDomains,
			RequireGuest:       cfg.TeamsRequireGuestOnly,
			TenantDeniedReason: policy.ReasonTenantNotAllowed,
		},
	}
}

// StartEventProcessor starts the background loop polling for pending and
// retryable events. Ingress e worker só conversam pelo event store, então
// qualquer um dos dois pode reiniciar sem perder trabalho.
func StartEventProcessor(database *gorm.DB, cfg config.Configuration) {
	p := NewProcessor(database, cfg)

	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for range ticker.C {
			p.ProcessDueEvents()
		}
	}()
}

// ProcessDueEvents runs one poll cycle: oldest-first batch, sequential, each
// event to completion before the next. Erro em um evento vira failed+attempt
// e não derruba o ciclo.
func (p *Processor) ProcessDueEvents() {
	events, err := p.events.FetchProcessable(batchSize, models.EVENT_MAX_ATTEMPTS)
	if err != nil {
		log.Printf("events worker: query error: %v", err)
		return
	}

	for i := range events {
		ev := &events[i]
		if err := p.processEvent(ev); err != nil {
			log.Printf("events worker: event %s failed (attempt %d): %v", ev.ID, ev.Attempts+1, err)
			if markErr := p.events.MarkFailed(ev.ID, err.Error()); markErr != nil {
				log.Printf("events worker: mark failed error: %v", markErr)
			}
		}
	}
}

func (p *Processor) processEvent(ev *models.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch ev.Provider {
	case models.EVENT_PROVIDER_SLACK:
		return p.processSlackEvent(ctx, ev)
	case models.EVENT_PROVIDER_TEAMS:
		return p.processTeamsEvent(ctx, ev)
	default:
		// Provider desconhecido é terminal, não é erro de processamento.
		return p.events.MarkDenied(ev.ID, "unknown_provider")
	}
}

/************************************************
/**** MARK: SLACK ****/
/************************************************/

// slackEventBody: em team_join/user_change o usuário vem em event.user, mas
// alguns shapes antigos trazem os campos direto no event — o embed cobre o
// fallback.
type slackEventBody struct {
	tools.SlackUser
	User *tools.SlackUser `json:"user"`
}

type slackPayload struct {
	TeamID string `json:"team_id"`
	Team   struct {
		ID string `json:"id"`
	} `json:"team"`
	Event slackEventBody `json:"event"`
}

func (p *Processor) processSlackEvent(ctx context.Context, ev *models.Event) error {
	var payload slackPayload
	if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
		return err
	}

	user := payload.Event.User
	if user == nil {
		user = &payload.Event.SlackUser
	}
	if user.ID == "" {
		// Sem identidade não há mapping possível; nega só o evento.
		return p.events.MarkDenied(ev.ID, "missing_user_id")
	}

	teamID := payload.TeamID
	if teamID == "" {
		teamID = payload.Team.ID
	}

	// Allow-list de team antes do lookup: time barrado é negado mesmo que a
	// Web API do Slack esteja fora, e não gasta chamada.
	if len(p.slackRules.AllowedTenants) > 0 {
		if _, ok := p.slackRules.AllowedTenants[teamID]; !ok {
			return p.denyEvent(ev, models.EVENT_PROVIDER_SLACK, policy.Identity{
				ExternalUserID: user.ID,
				TenantOrTeamID: teamID,
			}, policy.ReasonTeamNotAllowed)
		}
	}

	// Payload de webhook pode vir parcial/não verificado; com a verificação
	// ligada, email e flags de guest saem do users.info. Falha aqui é
	// retryable: o evento volta no próximo ciclo.
	source := user
	if p.cfg.RequireSlackEmailVerification {
		live, err := p.slack.UserInfo(ctx, user.ID)
		if err != nil {
			log.Printf("events worker: users.info error for %s: %v", user.ID, err)
			return errors.New("slack_verify_failed")
		}
		source = live
	}

	identity := policy.Identity{
		ExternalUserID: user.ID,
		TenantOrTeamID: teamID,
		Email:          policy.NormalizeEmail(source.Profile.Email),
		IsGuest:        source.IsGuest(),
	}

	decision := policy.Evaluate(p.slackRules, identity)
	if !decision.Admit {
		return p.denyEvent(ev, models.EVENT_PROVIDER_SLACK, identity, decision.Reason)
	}

	return p.provision(ctx, ev, models.EVENT_PROVIDER_SLACK, identity)
}

/************************************************
/**** MARK: TEAMS ****/
/************************************************/

type teamsPayload struct {
	Value []struct {
		TenantID       string `json:"tenantId"`
		OrganizationID string `json:"organizationId"`
		Resource       string `json:"resource"`
		ResourceData   struct {
			ID                string `json:"id"`
			UserType          string `json:"userType"`
			Mail              string `json:"mail"`
			UserPrincipalName string `json:"userPrincipalName"`
		} `json:"resourceData"`
	} `json:"value"`
}

func (p *Processor) processTeamsEvent(ctx context.Context, ev *models.Event) error {
	var payload teamsPayload
	if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
		return err
	}
	if len(payload.Value) == 0 {
		return p.events.MarkDenied(ev.ID, "missing_items")
	}

	// Um batch do Graph pode misturar resource kinds; processa o primeiro.
	item := payload.Value[0]

	tenantID := item.TenantID
	if tenantID == "" {
		tenantID = item.OrganizationID
	}

	externalUserID := item.ResourceData.ID
	if externalUserID == "" {
		externalUserID = item.Resource
	}
	if externalUserID == "" {
		externalUserID = "unknown"
	}

	email := item.ResourceData.Mail
	if email == "" {
		email = item.ResourceData.UserPrincipalName
	}

	// userType vazio passa: nem toda notificação do Graph traz o campo, e
	// negar por ausência travaria o fluxo inteiro.
	userType := strings.ToLower(strings.TrimSpace(item.ResourceData.UserType))
	isGuest := userType == "" || userType == "guest"

	identity := policy.Identity{
		ExternalUserID: externalUserID,
		TenantOrTeamID: tenantID,
		Email:          policy.NormalizeEmail(email),
		IsGuest:        isGuest,
	}

	decision := policy.Evaluate(p.teamsRules, identity)
	if !decision.Admit {
		return p.denyEvent(ev, models.EVENT_PROVIDER_TEAMS, identity, decision.Reason)
	}

	return p.provision(ctx, ev, models.EVENT_PROVIDER_TEAMS, identity)
}

/************************************************
/**** MARK: OUTCOMES ****/
/************************************************/

// denyEvent grava o desfecho negado no mapping (audit por identidade) e
// fecha o evento. Negação é decisão de primeira classe, não exceção.
func (p *Processor) denyEvent(ev *models.Event, provider string, identity policy.Identity, reason string) error {
	err := p.mappings.Upsert(&models.Mapping{
		Provider:       provider,
		ExternalUserID: identity.ExternalUserID,
		TenantOrTeamID: identity.TenantOrTeamID,
		Email:          identity.Email,
		Status:         models.MAPPING_STATUS_DENIED,
		Reason:         reason,
	})
	if err != nil {
		return err
	}
	return p.events.MarkDenied(ev.ID, reason)
}

// provision executa o lado com efeito: cria/confirma a conta no n8n, manda o
// onboarding e grava o mapping. Com auto-provision desligado só avalia e
// registra (dry run).
func (p *Processor) provision(ctx context.Context, ev *models.Event, provider string, identity policy.Identity) error {
	if !p.cfg.AutoProvisionEnabled {
		err := p.mappings.Upsert(&models.Mapping{
			Provider:       provider,
			ExternalUserID: identity.ExternalUserID,
			TenantOrTeamID: identity.TenantOrTeamID,
			Email:          identity.Email,
			Status:         models.MAPPING_STATUS_DRY_RUN,
			Reason:         "auto_provision_disabled",
		})
		if err != nil {
			return err
		}
		return p.events.MarkDone(ev.ID, "dry_run")
	}

	created, err := p.n8n.CreateUser(ctx, identity.Email)
	if err != nil {
		return err
	}

	if err := p.mailer.Send(ctx, identity.Email, created.InviteAcceptURL); err != nil {
		return err
	}

	status := models.MAPPING_STATUS_EXISTS
	if created.Created {
		status = models.MAPPING_STATUS_CREATED
	}

	err = p.mappings.Upsert(&models.Mapping{
		Provider:       provider,
		ExternalUserID: identity.ExternalUserID,
		TenantOrTeamID: identity.TenantOrTeamID,
		Email:          identity.Email,
		N8NUserID:      created.ID,
		Status:         status,
		Reason:         "ok",
	})
	if err != nil {
		return err
	}
	return p.events.MarkDone(ev.ID, "provisioned")
}

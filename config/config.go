package config

import (
	"os"
	"strconv"
	"strings"
)

// Configuration é montada uma única vez no boot (env) e passada explícita
// para router/workers. Nenhum outro pacote lê os.Getenv.
type Configuration struct {
	Host string
	Port string

	Database string // "sqlite3" ou "postgres"
	DBPath   string // arquivo sqlite3
	DbHost   string
	DbPort   string
	DbUser   string
	DbName   string
	DbPass   string

	AutoProvisionEnabled          bool
	RequireSlackEmailVerification bool

	AllowedSlackTeamIDs map[string]struct{}
	AllowedEmailDomains map[string]struct{}

	SlackSigningSecret string
	SlackBotToken      string

	TeamsEnabled          bool
	TeamsClientState      string
	AllowedTeamsTenantIDs map[string]struct{}
	TeamsRequireGuestOnly bool

	N8NBaseURL        string
	N8NAPIKey         string
	N8NUserCreatePath string

	OnboardingMode      string // "setup_link" ou "temp_password"
	OnboardingSetupLink string

	GogAccount         string
	GogKeyringPassword string
	GogSendTimeout     int // segundos

	OpsToken string
}

// Load reads the whole configuration from environment variables.
// Call godotenv.Load() before this if you want .env support.
func Load() Configuration {
	return Configuration{
		Host: getenv("PROVISIONER_HOST", "127.0.0.1"),
		Port: getenv("PROVISIONER_PORT", "18089"),

		Database: getenv("PROVISIONER_DATABASE", "sqlite3"),
		DBPath:   getenv("PROVISIONER_DB_PATH", "db/provisioner.db"),
		DbHost:   os.Getenv("DB_HOST"),
		DbPort:   os.Getenv("DB_PORT"),
		DbUser:   os.Getenv("DB_USER"),
		DbName:   os.Getenv("DB_NAME"),
		DbPass:   os.Getenv("DB_PASS"),

		AutoProvisionEnabled:          envBool("AUTO_PROVISION_ENABLED", false),
		RequireSlackEmailVerification: envBool("REQUIRE_SLACK_EMAIL_VERIFICATION", true),

		AllowedSlackTeamIDs: envSet("ALLOWED_SLACK_TEAM_IDS", false),
		AllowedEmailDomains: envSet("ALLOWED_EMAIL_DOMAINS", true),

		SlackSigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
		SlackBotToken:      os.Getenv("SLACK_BOT_TOKEN"),

		TeamsEnabled:          envBool("TEAMS_ENABLED", false),
		TeamsClientState:      os.Getenv("TEAMS_CLIENT_STATE"),
		AllowedTeamsTenantIDs: envSet("ALLOWED_TEAMS_TENANT_IDS", false),
		TeamsRequireGuestOnly: envBool("TEAMS_REQUIRE_GUEST_ONLY", true),

		N8NBaseURL:        getenv("N8N_BASE_URL", "https://n8n.example.com"),
		N8NAPIKey:         os.Getenv("N8N_API_KEY"),
		N8NUserCreatePath: getenv("N8N_USER_CREATE_PATH", "/api/v1/users"),

		OnboardingMode:      getenv("ONBOARDING_MODE", "setup_link"),
		OnboardingSetupLink: getenv("ONBOARDING_SETUP_LINK", "https://n8n.example.com/signin"),

		GogAccount:         os.Getenv("GOG_ACCOUNT"),
		GogKeyringPassword: os.Getenv("GOG_KEYRING_PASSWORD"),
		GogSendTimeout:     envInt("GOG_SEND_TIMEOUT", 25),

		OpsToken: os.Getenv("OPS_TOKEN"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// envSet parses "a, b,c" into a set. Empty entries are dropped.
// lower=true normaliza tudo para minúsculas (domínios de email).
func envSet(key string, lower bool) map[string]struct{} {
	out := map[string]struct{}{}
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lower {
			part = strings.ToLower(part)
		}
		out[part] = struct{}{}
	}
	return out
}

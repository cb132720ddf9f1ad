package tools

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"time"
)

// Janela anti-replay do Slack: timestamp fora de ±300s é rejeitado mesmo com
// digest correto. Contrato fixo, não configurável.
const slackReplayWindow = 300 * time.Second

// VerifySlackSignature checks the Slack Events API signature: HMAC-SHA256 of
// "v0:<timestamp>:<raw-body>" with the signing secret, hex-encoded and
// prefixed with "v0=". Constant-time compare, nunca curto-circuito por byte.
func VerifySlackSignature(secret string, rawBody []byte, timestamp, signature string) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(ts, 0))
	if age > slackReplayWindow || age < -slackReplayWindow {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(rawBody)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyBearer compara "Authorization: Bearer <token>" em tempo constante.
// Token vazio na config libera o acesso (deploy atrás de rede interna).
func VerifyBearer(authHeader, token string) bool {
	if token == "" {
		return true
	}
	if authHeader == "" {
		return false
	}
	expected := "Bearer " + token
	return subtle.ConstantTimeCompare([]byte(authHeader), []byte(expected)) == 1
}

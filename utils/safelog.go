// utils/safelog.go
// ============================================================================
// SAFE LOGGING - masks personal and financial data in production
// ============================================================================

package utils

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

var (
	// IsProduction turns masking on.
	IsProduction = os.Getenv("GIN_MODE") == "release" ||
		os.Getenv("ENVIRONMENT") == "production" ||
		os.Getenv("ENV") == "production"

	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// SetupLogger replaces the package logger. Console output is used outside
// production, JSON lines in production.
func SetupLogger(level string, production bool, out io.Writer) {
	IsProduction = production
	if out == nil {
		out = os.Stdout
	}
	if !production {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	Logger = zerolog.New(out).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ============================================================================
// MASKING PATTERNS
// ============================================================================

var (
	emailRegex              = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	amountWithCurrencyRegex = regexp.MustCompile(`(?:[$€£]\s*\d+(?:[.,]\d{1,2})?)|(?:\b\d+(?:[.,]\d{1,2})?\s*(?:EUR|USD|GBP|CHF)\b)`)
	ibanRegex               = regexp.MustCompile(`[A-Z]{2}\d{2}[A-Z0-9]{10,30}`)
	cardRegex               = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	uuidRegex               = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// ============================================================================
// MASKING
// ============================================================================

// MaskString masks sensitive data in a free-form string.
func MaskString(input string) string {
	if !IsProduction {
		return input
	}

	result := input
	result = emailRegex.ReplaceAllString(result, "***@***.***")
	result = ibanRegex.ReplaceAllString(result, "****IBAN****")
	result = cardRegex.ReplaceAllString(result, "****-****-****-****")
	result = amountWithCurrencyRegex.ReplaceAllString(result, "***")
	result = uuidRegex.ReplaceAllStringFunc(result, shortenID)

	return result
}

func MaskAmount(amount float64) string {
	if IsProduction {
		return "***"
	}
	return fmt.Sprintf("%.2f", amount)
}

// MaskID keeps the first 8 characters of an id.
func MaskID(id string) string {
	if !IsProduction {
		return id
	}
	return shortenID(id)
}

func MaskEmail(email string) string {
	if !IsProduction {
		return email
	}
	return "***@***.***"
}

func shortenID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}

// ============================================================================
// SAFE LOGGING
// ============================================================================

func SafeDebug(format string, args ...interface{}) {
	Logger.Debug().Msg(MaskString(fmt.Sprintf(format, args...)))
}

func SafeInfo(format string, args ...interface{}) {
	Logger.Info().Msg(MaskString(fmt.Sprintf(format, args...)))
}

func SafeWarn(format string, args ...interface{}) {
	Logger.Warn().Msg(MaskString(fmt.Sprintf(format, args...)))
}

func SafeError(format string, args ...interface{}) {
	Logger.Error().Msg(MaskString(fmt.Sprintf(format, args...)))
}

// ============================================================================
// DOMAIN LOGGING
// ============================================================================

// LogLedgerAction logs a write on a user's ledger without amounts.
func LogLedgerAction(action, recordID, userID string) {
	Logger.Info().
		Str("scope", "ledger").
		Str("action", action).
		Str("record", MaskID(recordID)).
		Str("user", MaskID(userID)).
		Msg("ledger write")
}

func LogAuthAction(action, username string, success bool) {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	Logger.Info().
		Str("scope", "auth").
		Str("action", action).
		Str("user", MaskID(username)).
		Str("status", status).
		Msg("auth")
}

func LogAIRequest(provider, model string, inputTokens, outputTokens int) {
	Logger.Info().
		Str("scope", "ai").
		Str("provider", provider).
		Str("model", model).
		Int("input_tokens", inputTokens).
		Int("output_tokens", outputTokens).
		Msg("completion")
}

func LogPush(userID string, sent, failed, removed int) {
	Logger.Info().
		Str("scope", "push").
		Str("user", MaskID(userID)).
		Int("sent", sent).
		Int("failed", failed).
		Int("removed", removed).
		Msg("push dispatch")
}

// LogAPIRequest logs a request line; ids in the path are shortened in production.
func LogAPIRequest(method, path, userID string, statusCode int, duration time.Duration) {
	if IsProduction {
		path = uuidRegex.ReplaceAllStringFunc(path, shortenID)
	}
	Logger.Info().
		Str("scope", "api").
		Str("method", method).
		Str("path", path).
		Str("user", MaskID(userID)).
		Int("status", statusCode).
		Dur("duration", duration).
		Msg("request")
}

func LogWebSocket(action, userID string) {
	Logger.Info().
		Str("scope", "ws").
		Str("action", action).
		Str("user", MaskID(userID)).
		Msg("websocket")
}

// ============================================================================
// STARTUP
// ============================================================================

func GetEnvMode() string {
	if IsProduction {
		return "production"
	}
	return "development"
}

func LogStartup(appName, version, port string) {
	Logger.Info().
		Str("app", appName).
		Str("version", version).
		Str("mode", GetEnvMode()).
		Str("port", port).
		Str("level", Logger.GetLevel().String()).
		Msg("starting")
	if IsProduction {
		Logger.Warn().Msg("production mode: sensitive data will be masked in logs")
	}
}

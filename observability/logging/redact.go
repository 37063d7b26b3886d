package logging

import (
	"log/slog"
	"strings"
)

// Redacted is written in place of secret values.
const Redacted = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"hmac_secret":   {},
	"secret":        {},
	"password":      {},
}

// IsSensitive reports whether string values logged under key are masked by
// the JSON handler.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns an attribute whose value is replaced by Redacted. Empty
// values are kept so a missing credential stays visible in logs.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}

func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsSensitive(attr.Key) {
		return attr
	}
	return MaskField(attr.Key, attr.Value.String())
}

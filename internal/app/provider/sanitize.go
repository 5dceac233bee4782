package provider

import (
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/ctpgate/internal/infra/config"
)

var (
	sensitiveFragments = []string{
		"secret",
		"password",
		"authcode",
		"token",
		"appid",
	}

	settingReplacer = strings.NewReplacer("-", "", "_", "", " ", "")
)

// SanitizeGatewayConfig renders a gateway entry as a generic map with
// credentials removed, suitable for the control API.
func SanitizeGatewayConfig(cfg config.GatewayConfig) map[string]any {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	return sanitizeSettingsMap(generic)
}

func sanitizeSettingsMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		if isSensitiveSetting(key) {
			continue
		}
		switch typed := value.(type) {
		case map[string]any:
			if nested := sanitizeSettingsMap(typed); len(nested) > 0 {
				out[key] = nested
			}
		default:
			out[key] = typed
		}
	}
	return out
}

func isSensitiveSetting(key string) bool {
	normalized := strings.ToLower(settingReplacer.Replace(key))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

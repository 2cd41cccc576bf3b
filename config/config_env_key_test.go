package config

import "testing"

func TestCanonicalizeEnvKey_UsesExistingCamelCaseKeys(t *testing.T) {
	existing := map[string]any{
		"oauth": map[string]any{
			"clientId":    "",
			"redirectUri": "",
		},
		"atproto": map[string]any{
			"plcDirectory": "https://plc.directory",
			"dohEndpoint":  "",
		},
		"storage": map[string]any{
			"path": "./data",
		},
	}

	tests := []struct {
		envKey string
		want   string
	}{
		{envKey: "OAUTH_CLIENTID", want: "oauth.clientId"},
		{envKey: "OAUTH_REDIRECTURI", want: "oauth.redirectUri"},
		{envKey: "ATPROTO_PLCDIRECTORY", want: "atproto.plcDirectory"},
		{envKey: "STORAGE_PATH", want: "storage.path"},
		{envKey: "NEW_FEATURE_FLAG", want: "new.feature.flag"},
	}

	for _, tt := range tests {
		t.Run(tt.envKey, func(t *testing.T) {
			if got := canonicalizeEnvKey(tt.envKey, existing); got != tt.want {
				t.Fatalf("canonicalizeEnvKey(%q) = %q, want %q", tt.envKey, got, tt.want)
			}
		})
	}
}

package schema

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSecret_Redacted(t *testing.T) {
	s := Secret("hunter2")
	if s.String() != "[redacted]" {
		t.Errorf("String() = %q", s.String())
	}
	if s.Value() != "hunter2" {
		t.Errorf("Value() = %q", s.Value())
	}
	data, _ := json.Marshal(APIConfig{Token: s})
	if string(data) != `{"enabled":false,"listen":"","token":"[redacted]"}` {
		t.Errorf("json = %s", data)
	}
	if !Secret("").IsEmpty() || Secret("").String() != "" {
		t.Error("empty secret should stay empty")
	}
}

func TestSecret_UnmarshalYAMLExpandsEnv(t *testing.T) {
	t.Setenv("PB_TEST_TOKEN", "from-env")

	var cfg APIConfig
	if err := yaml.Unmarshal([]byte("token: ${PB_TEST_TOKEN}\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Token.Value() != "from-env" {
		t.Errorf("Token = %q, want from-env", cfg.Token.Value())
	}

	if err := yaml.Unmarshal([]byte("token: plain\n"), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Token.Value() != "plain" {
		t.Errorf("Token = %q, want plain", cfg.Token.Value())
	}
}

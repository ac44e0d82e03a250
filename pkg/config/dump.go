package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// YAML renders the effective configuration with secrets masked
func (c *Config) YAML() ([]byte, error) {
	out := *c
	out.Web.PasswordHash = mask(out.Web.PasswordHash)
	out.Web.JWTSecret = mask(out.Web.JWTSecret)
	out.MQTT.Password = mask(out.MQTT.Password)

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return redacted
}

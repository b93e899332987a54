package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/use-agent/tukibridge/models"
	"gopkg.in/yaml.v3"
)

// ConditionChoices lists how a kind can be picked in the site's condition
// control: option values first, then visible labels.
type ConditionChoices struct {
	Values []string `yaml:"values"`
	Labels []string `yaml:"labels"`
}

// DefaultConditions returns the condition tables known to work on the site.
func DefaultConditions() map[string]ConditionChoices {
	return map[string]ConditionChoices{
		"login_code": {
			Values: []string{"netflix_code", "netflix_temp_code", "code", "login_code"},
			Labels: []string{"Netflix: Mã Đăng Nhập", "Netflix: Mã Tạm Thời", "Mã đăng nhập", "Login code"},
		},
		"verify_link": {
			Values: []string{"netflix_verify", "verify_link", "household_verify", "netflix_household"},
			Labels: []string{"Netflix: Link Xác Minh Gia Đình", "Link xác minh", "Xác minh hộ gia đình", "Household verify"},
		},
	}
}

// LoadConditions reads condition tables from a YAML file of the form:
//
//	login_code:
//	  values: [netflix_code]
//	  labels: ["Netflix: Mã Đăng Nhập"]
//	verify_link:
//	  values: [netflix_verify]
//
// Kinds missing from the file keep their built-in defaults.
func LoadConditions(path string) (map[string]ConditionChoices, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conditions: %w", err)
	}

	var fromFile map[string]ConditionChoices
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse conditions: %w", err)
	}

	conds := DefaultConditions()
	for key, choices := range fromFile {
		kind, err := models.ParseKind(key)
		if err != nil || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("conditions: unknown kind %q", key)
		}
		if len(choices.Values) == 0 && len(choices.Labels) == 0 {
			return nil, fmt.Errorf("conditions for %q list no values or labels", kind)
		}
		conds[string(kind)] = choices
	}
	return conds, nil
}

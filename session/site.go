package session

import (
	"github.com/use-agent/tukibridge/browser"
	"github.com/use-agent/tukibridge/config"
	"github.com/use-agent/tukibridge/models"
)

// Site describes the target website: where it lives, what to type into its
// optional identifier step, and how to find each control. Every control is an
// ordered candidate list because the site's markup is not stable.
type Site struct {
	URL        string
	Identifier string

	IdentifierField browser.Locators
	ContinueButtons browser.Locators
	QueryField      browser.Locators
	ConditionSelect browser.Locators
	SubmitButtons   browser.Locators
	ResultArea      browser.Locators
	Warning         browser.Locators

	// Conditions maps each kind to the option values and labels that select it.
	Conditions map[models.Kind]config.ConditionChoices

	// StrictCondition fails the query when the condition control exists but no
	// candidate matched, instead of submitting with the preselected option.
	StrictCondition bool
}

// DefaultSite returns the locators known to work on the site, bound to cfg.
func DefaultSite(cfg config.SiteConfig) Site {
	conds := make(map[models.Kind]config.ConditionChoices, len(cfg.Conditions))
	for k, v := range cfg.Conditions {
		conds[models.Kind(k)] = v
	}

	return Site{
		URL:        cfg.URL,
		Identifier: cfg.DefaultIdentifier,

		IdentifierField: browser.Locators{browser.CSS("#username")},
		ContinueButtons: browser.Locators{
			browser.CSS("button.btn.btn-success.w-100"),
			browser.XPath("//button[contains(., 'Tiếp tục')]"),
			browser.XPath("//button[@type='submit']"),
		},
		QueryField:      browser.Locators{browser.CSS("#email")},
		ConditionSelect: browser.Locators{browser.CSS("select#condition")},
		SubmitButtons: browser.Locators{
			browser.XPath("//button[contains(., 'Tìm kiếm')]"),
			browser.CSS("button[type='submit']"),
			browser.XPath("//input[@type='submit' and (contains(@value,'Tìm') or contains(@value,'Search'))]"),
		},
		ResultArea: browser.Locators{browser.CSS("#results-content")},
		Warning:    browser.Locators{browser.CSS(".alert.alert-warning")},

		Conditions:      conds,
		StrictCondition: cfg.StrictCondition,
	}
}

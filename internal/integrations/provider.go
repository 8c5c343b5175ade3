package integrations

import "fmt"

// Provider identifies a third-party platform an organization can connect.
type Provider string

const (
	Google    Provider = "google"
	Facebook  Provider = "facebook"
	Instagram Provider = "instagram"
	LinkedIn  Provider = "linkedin"
	Webflow   Provider = "webflow"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{Google, Facebook, Instagram, LinkedIn, Webflow}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	for _, p := range Providers {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// UsesOAuth reports whether the provider is connected through an
// authorization-code flow of its own. Instagram rides on the Facebook grant
// and Webflow uses an API token.
func (p Provider) UsesOAuth() bool {
	return p == Google || p == Facebook || p == LinkedIn
}

// CanPublish reports whether posts can be sent to the provider.
func (p Provider) CanPublish() bool {
	return p == Facebook || p == Instagram || p == LinkedIn || p == Webflow
}

func (p Provider) String() string {
	return string(p)
}

// Settings keys stored in ProviderConfig.Settings.
const (
	SettingGA4Property       = "ga4_property_id"
	SettingSearchConsoleSite = "search_console_site"
	SettingPageSpeedURL      = "pagespeed_url"

	SettingPageID          = "page_id"
	SettingPageName        = "page_name"
	SettingPageAccessToken = "page_access_token"

	SettingIGUserID   = "ig_user_id"
	SettingIGUsername = "username"

	SettingAuthorURN       = "author_urn"
	SettingOrganizationURN = "organization_urn"

	SettingSiteID       = "site_id"
	SettingCollectionID = "collection_id"
)

// editableSettings are the keys a dashboard user may change directly.
// Tokens and identifiers discovered during OAuth are not user editable.
// The Facebook page is switched through connect.Service.SelectFacebookPage
// because its page token has to change with it.
var editableSettings = map[Provider]map[string]bool{
	Google: {
		SettingGA4Property:       true,
		SettingSearchConsoleSite: true,
		SettingPageSpeedURL:      true,
	},
	Facebook:  {},
	Instagram: {},
	LinkedIn:  {SettingOrganizationURN: true},
	Webflow: {
		SettingSiteID:       true,
		SettingCollectionID: true,
	},
}

// IsEditableSetting reports whether key may be set through the settings API.
func IsEditableSetting(p Provider, key string) bool {
	return editableSettings[p][key]
}

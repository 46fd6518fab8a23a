package config

// SensitiveDomains returns a curated list of domains whose history is left
// out when filter.sensitive_defaults is set: banking, password managers,
// identity providers, healthcare portals and government services.
func SensitiveDomains() []string {
	return []string{
		// Banking & Payments
		"chase.com",
		"bankofamerica.com",
		"wellsfargo.com",
		"capitalone.com",
		"schwab.com",
		"fidelity.com",
		"vanguard.com",
		"paypal.com",
		"venmo.com",

		// Password Managers
		"1password.com",
		"lastpass.com",
		"bitwarden.com",
		"dashlane.com",

		// Sign-in Pages
		"accounts.google.com",
		"login.microsoftonline.com",
		"login.live.com",
		"okta.com",

		// Healthcare
		"mychart.com",
		"healthcare.gov",
		"medicare.gov",

		// Government & Tax
		"irs.gov",
		"ssa.gov",
		"login.gov",
		"id.me",
	}
}

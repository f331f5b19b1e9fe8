package registry

// defaultProviders is the built-in registry used when no providers file is
// present. Providers whose token endpoint depends on per-credential config
// (zendesk, shopify, salesforce, zoho) leave refresh_token_url empty and rely
// on the fallback resolver table.
func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Key:             "googlesheets",
			Enabled:         boolPtr(true),
			AuthType:        "oauth2",
			APIEndpoint:     "https://sheets.googleapis.com",
			RefreshTokenURL: "https://oauth2.googleapis.com/token",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/v4/spreadsheets/{spreadsheet_id}/values/{range}", Params: []string{"spreadsheet_id", "range"}},
				{Name: "append_row", Method: "POST", Path: "/v4/spreadsheets/{spreadsheet_id}/values/{range}:append", Params: []string{"spreadsheet_id", "range"}},
			},
		},
		{
			Key:         "zendesk",
			Enabled:     boolPtr(true),
			AuthType:    "oauth2",
			APIEndpoint: "https://{subdomain}.zendesk.com",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/api/v2/tickets"},
				{Name: "create_row", Method: "POST", Path: "/api/v2/tickets"},
			},
		},
		{
			Key:         "shopify",
			Enabled:     boolPtr(true),
			AuthType:    "oauth2",
			APIEndpoint: "https://{subdomain}.myshopify.com",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/admin/api/2024-01/orders.json"},
				{Name: "get_row", Method: "GET", Path: "/admin/api/2024-01/orders/{order_id}.json", Params: []string{"order_id"}},
			},
		},
		{
			Key:         "salesforce",
			Enabled:     boolPtr(true),
			AuthType:    "oauth2",
			APIEndpoint: "{endpoint}",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/services/data/v59.0/query"},
			},
		},
		{
			Key:             "zoho",
			Enabled:         boolPtr(true),
			AuthType:        "oauth2",
			APIEndpoint:     "{endpoint}",
			RefreshTokenURL: "{auth_endpoint}/oauth/v2/token",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/crm/v5/{module}", Params: []string{"module"}},
			},
		},
		{
			Key:             "github",
			Enabled:         boolPtr(true),
			AuthType:        "oauth2",
			APIEndpoint:     "https://api.github.com",
			RefreshTokenURL: "https://github.com/login/oauth/access_token",
			StaticHeaders:   map[string]string{"Accept": "application/vnd.github+json"},
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/repos/{owner}/{repo}/issues", Params: []string{"owner", "repo"}},
				{Name: "create_row", Method: "POST", Path: "/repos/{owner}/{repo}/issues", Params: []string{"owner", "repo"}},
			},
		},
		{
			Key:         "airtable",
			Enabled:     boolPtr(true),
			AuthType:    "api_token",
			APIEndpoint: "https://api.airtable.com",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/v0/{base_id}/{table}", Params: []string{"base_id", "table"}},
				{Name: "create_row", Method: "POST", Path: "/v0/{base_id}/{table}", Params: []string{"base_id", "table"}},
			},
		},
		{
			Key:         "stripe",
			Enabled:     boolPtr(true),
			AuthType:    "api_token",
			APIEndpoint: "https://api.stripe.com",
			ContentType: "application/x-www-form-urlencoded",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/v1/charges"},
			},
		},
		{
			Key:         "typeform",
			Enabled:     boolPtr(true),
			AuthType:    "api_token",
			APIEndpoint: "https://api.typeform.com",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/forms/{form_id}/responses", Params: []string{"form_id"}},
			},
		},
		{
			Key:         "clickup",
			Enabled:     boolPtr(true),
			AuthType:    "api_token",
			AuthScheme:  AuthSchemeHeader,
			AuthField:   "Authorization",
			APIEndpoint: "https://api.clickup.com",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/api/v2/list/{list_id}/task", Params: []string{"list_id"}},
			},
		},
		{
			Key:         "giphy",
			Enabled:     boolPtr(true),
			AuthType:    "api_token",
			AuthScheme:  AuthSchemeQuery,
			AuthField:   "api_key",
			APIEndpoint: "https://api.giphy.com",
			Intents: []IntentConfig{
				{Name: "list_rows", Method: "GET", Path: "/v1/gifs/search"},
			},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}

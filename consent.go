package oauth

import (
	"html/template"
)

// consentPageData feeds the consent template. The hidden form fields
// round-trip the authorization parameters to the approval endpoint.
type consentPageData struct {
	ClientID    string
	ClientName  string
	RedirectURI string
	Scope       string
	State       string
	// ScopeDisplay is what the user sees; an empty scope is shown as a
	// generic description rather than a blank line.
	ScopeDisplay string
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Authorize {{if .ClientName}}{{.ClientName}}{{else}}{{.ClientID}}{{end}}</title>
<style>
  body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; background: #f5f5f5; margin: 0; }
  .card { max-width: 420px; margin: 10vh auto; background: #fff; border-radius: 8px; padding: 2rem; box-shadow: 0 1px 4px rgba(0,0,0,.15); }
  h1 { font-size: 1.25rem; margin-top: 0; }
  .scopes { background: #f0f4f8; border-radius: 4px; padding: .75rem 1rem; margin: 1rem 0; }
  .buttons { display: flex; gap: .75rem; margin-top: 1.5rem; }
  button { flex: 1; padding: .6rem 0; border: none; border-radius: 4px; font-size: 1rem; cursor: pointer; }
  .approve { background: #2563eb; color: #fff; }
  .deny { background: #e5e7eb; color: #111; }
</style>
</head>
<body>
<div class="card">
  <h1>Authorization Request</h1>
  <p><strong>{{if .ClientName}}{{.ClientName}}{{else}}{{.ClientID}}{{end}}</strong> is requesting access to your workspace.</p>
  <div class="scopes">{{.ScopeDisplay}}</div>
  <form method="post" action="/oauth/approve">
    <input type="hidden" name="client_id" value="{{.ClientID}}">
    <input type="hidden" name="redirect_uri" value="{{.RedirectURI}}">
    <input type="hidden" name="scope" value="{{.Scope}}">
    <input type="hidden" name="state" value="{{.State}}">
    <div class="buttons">
      <button class="approve" type="submit" name="approved" value="true">Approve</button>
      <button class="deny" type="submit" name="approved" value="false">Deny</button>
    </div>
  </form>
</div>
</body>
</html>
`))

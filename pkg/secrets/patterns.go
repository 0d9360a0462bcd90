package secrets

// ValuePattern is a named regular expression matching secret values.
type ValuePattern struct {
	Name    string
	Pattern string
}

// DefaultFieldPatterns returns the glob patterns for field names that
// carry credentials.
func DefaultFieldPatterns() []string {
	return []string{
		"*password*",
		"*secret*",
		"*token*",
		"authorization",
		"*bearer*",
		"*credential*",
		"*refresh_token*",
		"*access_token*",
		"*id_token*",
		"code_verifier",
		"*jwt*",
	}
}

// DefaultValuePatterns returns the patterns for credential values that
// show up in member sessions and the Google sign-in exchange.
func DefaultValuePatterns() []ValuePattern {
	return []ValuePattern{
		{
			Name:    "Bearer Token",
			Pattern: `Bearer\s+[A-Za-z0-9\-._~+/]+=*`,
		},
		{
			Name:    "JWT Token",
			Pattern: `eyJ[A-Za-z0-9-_=]+\.eyJ[A-Za-z0-9-_=]+\.[A-Za-z0-9-_.+/=]*`,
		},
		{
			Name:    "Google OAuth Token",
			Pattern: `ya29\.[0-9A-Za-z\-_]+`,
		},
		{
			Name:    "Basic Auth",
			Pattern: `Basic\s+[A-Za-z0-9+/]+=*`,
		},
	}
}

// DefaultHeaders returns the HTTP headers whose values are always masked.
func DefaultHeaders() []string {
	return []string{
		"Authorization",
		"Proxy-Authorization",
		"Cookie",
		"Set-Cookie",
	}
}

package config

import "os"

// BaseURL resolves the externally visible base URL of the deployment.
// Precedence follows the hosting platform conventions: an explicit auth
// callback URL wins, then the public app/site URLs, then the
// platform-injected VERCEL_URL host (scheme-less), then a local fallback.
func BaseURL() string {
	for _, key := range []string{"NEXTAUTH_URL", "NEXT_PUBLIC_APP_URL", "NEXT_PUBLIC_SITE_URL"} {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	if host := os.Getenv("VERCEL_URL"); host != "" {
		return "https://" + host
	}
	return "http://localhost:3000"
}

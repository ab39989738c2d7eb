package auth

import (
	"log"
	"os"
)

// AdminTokenEnv names the environment variable holding the admin token.
const AdminTokenEnv = "SHOWWERS_ADMIN_TOKEN"

// LoadAdminToken reads the token that guards admin routes.
// It logs a warning if it is not set; admin routes then reject every request.
func LoadAdminToken() string {
	token := os.Getenv(AdminTokenEnv)
	if token == "" {
		log.Printf("WARNING: %s environment variable not set, admin routes are disabled.", AdminTokenEnv)
	}
	return token
}

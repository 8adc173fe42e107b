// Package auth authenticates users of the books API.
//
// Every request outside the public paths must carry either a bearer token
// (command-line and other API clients) or a session cookie (browsers). Both
// resolve to a stored user whose id becomes the owner of every book the
// request touches.
//
// # Configuration
//
//	AUTH_SESSION_SECRET=<hex-32-bytes>  # Auto-generated if empty
//	AUTH_SESSION_LIFETIME=24h           # Session duration
//	AUTH_TOKEN_EXPIRY=720h              # API token expiry (30 days default)
//	AUTH_BCRYPT_COST=12                 # bcrypt cost factor
//	AUTH_SECURE_COOKIES=true            # HTTPS-only cookies
//	AUTH_MAX_LOGIN_ATTEMPTS=5           # Failed logins before lockout
//
// # Usage
//
//	svc := auth.NewService(users.NewRepository(db), cfg.Auth)
//	mw := auth.NewMiddleware(svc, sessions)
//	router.Use(mw.Handler())
//
// Extract the caller in handlers:
//
//	userID := auth.GetUserID(c)
package auth

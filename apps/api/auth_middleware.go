package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/nuzum-saas/platform/go/auth"
	"github.com/zenGate-Global/nuzum-saas/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware for the configured token issuer.
// It only turns a bearer token into credentials; the guard chain decides what the caller may do.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "hmac":
		if cfg.JWTSecret == "" {
			return nil, errors.New("JWT_SECRET is required when AUTH_PROVIDER=hmac")
		}
		verify = platformauth.HMACTokenVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase auth: %w", err)
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		return nil, fmt.Errorf("unsupported AUTH_PROVIDER %q (use hmac, firebase or dev)", cfg.AuthProvider)
	}

	logger.Info("auth middleware ready", zap.String("provider", cfg.AuthProvider))
	return platformauth.JWT(verify, platformauth.DefaultCredentialExtractor), nil
}

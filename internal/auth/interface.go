package auth

import "concord/internal/domain/models"

// JWTVerifier validates bearer tokens for the authenticated API surface.
// The middleware depends on this interface only, so the JWKS-backed
// implementation can be swapped out in tests.
type JWTVerifier interface {
	// VerifyToken validates a JWT string and returns the parsed claims.
	// Returns an error if the token is invalid, expired, or has a bad signature.
	VerifyToken(tokenString string) (*models.SupabaseClaims, error)

	// Close releases any resources held by the verifier (e.g., the JWKS refresher).
	Close() error
}

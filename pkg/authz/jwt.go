package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT bearer token extractor.
type JWTConfig struct {
	// IDClaim holds the user id. Default: "sub"
	IDClaim string
	// EmailClaim holds the user email. Default: "email"
	EmailClaim string
	// NameClaim holds the display name. Default: "name"
	NameClaim string
	// RoleClaim is the claim path containing the user's role.
	// Supports dot-notation for nested claims (e.g., "realm_access.roles").
	// Default: "role"
	RoleClaim string

	// PublicKeyPath is the path to the PEM-encoded RSA public key for RS256 verification.
	// If empty, tokens are parsed but NOT verified (suitable for dev/testing with trusted proxies).
	PublicKeyPath string

	// Issuer is the expected token issuer (iss claim). If empty, issuer is not validated.
	Issuer string

	// Audience is the expected token audience (aud claim). If empty, audience is not validated.
	Audience string

	// Logger for debugging. If nil, uses slog.Default().
	Logger *slog.Logger
}

// NewJWTExtractor creates an Extractor that reads identities from JWT Bearer
// tokens in the Authorization header.
//
// If PublicKeyPath is set, tokens are verified (RS256). Otherwise they are
// parsed without verification (trusted proxy mode). A request without a
// token yields an anonymous identity; a malformed or unverifiable token, or
// one without a known role, is an error.
func NewJWTExtractor(cfg JWTConfig) (Extractor, error) {
	if cfg.IDClaim == "" {
		cfg.IDClaim = "sub"
	}
	if cfg.EmailClaim == "" {
		cfg.EmailClaim = "email"
	}
	if cfg.NameClaim == "" {
		cfg.NameClaim = "name"
	}
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "role"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var publicKey *rsa.PublicKey
	if cfg.PublicKeyPath != "" {
		keyData, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key from %s: %w", cfg.PublicKeyPath, err)
		}
		key, err := ParseRSAPublicKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.PublicKeyPath, err)
		}
		publicKey = key
		cfg.Logger.Info("JWT extractor: using RS256 verification", "keyPath", cfg.PublicKeyPath)
	} else {
		cfg.Logger.Warn("JWT extractor: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return newJWTExtractor(cfg, publicKey), nil
}

func newJWTExtractor(cfg JWTConfig, publicKey *rsa.PublicKey) Extractor {
	return func(r *http.Request) (Identity, error) {
		token := extractBearerToken(r)
		if token == "" {
			return Identity{}, nil
		}

		claims, err := parseJWTClaims(token, publicKey, cfg)
		if err != nil {
			cfg.Logger.Debug("JWT parse failed", "error", err)
			return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}

		id := Identity{
			ID:    stringClaim(claims, cfg.IDClaim),
			Email: stringClaim(claims, cfg.EmailClaim),
			Name:  stringClaim(claims, cfg.NameClaim),
		}
		if id.ID == "" {
			return Identity{}, fmt.Errorf("%w: token has no %q claim", ErrUnauthenticated, cfg.IDClaim)
		}
		role, ok := extractRoleFromClaims(claims, cfg.RoleClaim)
		if !ok {
			return Identity{}, fmt.Errorf("%w: token has no known role in %q", ErrUnauthenticated, cfg.RoleClaim)
		}
		id.Role = role
		return id, nil
	}
}

// ParseRSAPublicKey decodes a PEM-encoded PKIX RSA public key.
func ParseRSAPublicKey(keyData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsedKey)
	}
	return rsaKey, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// parseJWTClaims parses and optionally verifies a JWT token.
func parseJWTClaims(tokenString string, publicKey *rsa.PublicKey, cfg JWTConfig) (jwt.MapClaims, error) {
	parserOpts := []jwt.ParserOption{}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	var token *jwt.Token
	var err error

	if publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		}, parserOpts...)
	} else {
		// Trusted proxy mode: parse without verification
		parser := jwt.NewParser(parserOpts...)
		token, _, err = parser.ParseUnverified(tokenString, jwt.MapClaims{})
	}

	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}

	return claims, nil
}

// lookupClaim resolves a dot-notation claim path.
func lookupClaim(claims jwt.MapClaims, claimPath string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(claims)
	for _, part := range strings.Split(claimPath, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringClaim(claims jwt.MapClaims, claimPath string) string {
	v, _ := lookupClaim(claims, claimPath)
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// extractRoleFromClaims extracts the role from JWT claims.
// For array claims (e.g., Keycloak realm_access.roles), the first known role
// in the array wins.
func extractRoleFromClaims(claims jwt.MapClaims, claimPath string) (Role, bool) {
	current, ok := lookupClaim(claims, claimPath)
	if !ok {
		return "", false
	}

	if strVal, ok := current.(string); ok {
		return ParseRole(strVal)
	}

	if arrVal, ok := current.([]interface{}); ok {
		for _, v := range arrVal {
			if s, ok := v.(string); ok {
				if role, ok := ParseRole(s); ok {
					return role, true
				}
			}
		}
	}

	return "", false
}

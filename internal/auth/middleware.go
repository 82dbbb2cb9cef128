package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/collab-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal is the already-validated identity every engine operation
// receives: the caller's (userId, companyId) pair plus display metadata.
type Principal struct {
	UserID    string
	CompanyID string
	UserName  string
	UserEmail string
	Role      string
}

// AuthMiddleware validates bearer tokens and resolves principals.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	if claims.UserID == "" || claims.CompanyID == "" {
		return apperrors.NewUnauthorized("token missing identity")
	}

	c.Locals(principalKey, PrincipalFromClaims(claims))
	return c.Next()
}

// PrincipalFromClaims maps parsed token claims onto a principal.
func PrincipalFromClaims(claims *Claims) *Principal {
	return &Principal{
		UserID:    claims.UserID,
		CompanyID: claims.CompanyID,
		UserName:  claims.UserName,
		UserEmail: claims.UserEmail,
		Role:      claims.Role,
	}
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/WhiteRose021/fieldx-website-sub000/internal/domain"
	"github.com/WhiteRose021/fieldx-website-sub000/internal/repository"
	"github.com/WhiteRose021/fieldx-website-sub000/pkg/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User *domain.User
	Role domain.Role
}

// Viewer derives the viewer identity for the ticket layer.
func (p *Principal) Viewer() domain.Viewer {
	return domain.Viewer{Email: p.User.Email, Role: p.Role}
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return errorutil.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return errorutil.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return errorutil.NewUnauthorized("invalid token")
	}

	user, err := m.users.GetByEmail(c.Context(), claims.Email)
	if err != nil {
		if repository.IsNoRows(err) {
			return errorutil.NewUnauthorized("account not found")
		}
		return errorutil.NewInternalError(err)
	}
	if user.Status != domain.UserStatusActive {
		return errorutil.NewForbidden("account suspended")
	}

	c.Locals(principalKey, &Principal{User: user, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

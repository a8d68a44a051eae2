package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/clinica-faturamento-bfa-go/internal/domain"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims are the access token claims issued by the clinic identity provider.
type Claims struct {
	TherapistID string   `json:"therapistId,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HMAC-signed access tokens and turns them into actors.
type TokenVerifier struct {
	secret        []byte
	reviewerRoles []string
}

// NewTokenVerifier creates a verifier. Holders of any of reviewerRoles get the
// reviewer capability.
func NewTokenVerifier(secret string, reviewerRoles []string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), reviewerRoles: reviewerRoles}
}

// Verify parses and validates a token.
func (v *TokenVerifier) Verify(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Actor{}, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Actor{}, &domain.ErrUnauthorized{Message: "Token inválido"}
	}

	actor := domain.Actor{
		ID:          claims.Subject,
		TherapistID: claims.TherapistID,
		Roles:       claims.Roles,
	}
	actor.Reviewer = actor.HasAnyRole(v.reviewerRoles)
	return actor, nil
}

// JWTAuthMiddleware validates Bearer tokens and injects the actor into context.
func JWTAuthMiddleware(verifier *TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Token de autenticação não fornecido")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "Formato de token inválido")
				return
			}

			actor, err := verifier.Verify(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext extracts the authenticated actor from context.
func ActorFromContext(ctx context.Context) domain.Actor {
	a, _ := ctx.Value(actorKey).(domain.Actor)
	return a
}

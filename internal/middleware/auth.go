package middleware

import (
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// Actor roles carried in JWT claims. Dispatchers schedule and administer;
// technicians execute field commands.
const (
	RoleDispatcher = "dispatcher"
	RoleTechnician = "technician"
)

// JWTAuth validates the bearer token and propagates the actor's identity and
// role to handlers via request headers.
func JWTAuth(secret string, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			tokenString := extractToken(ctx)
			if tokenString == "" {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid jwt token", zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}

			// Actor headers are derived from claims only. Whatever the
			// client sent under these names is dropped first, so a missing
			// claim cannot be backfilled by a spoofed header.
			ctx.Request.Header.Del("X-Actor-ID")
			ctx.Request.Header.Del("X-Actor-Role")
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if actorID, ok := claims["actor_id"].(string); ok {
					ctx.Request.Header.Set("X-Actor-ID", actorID)
				}
				if role, ok := claims["role"].(string); ok {
					ctx.Request.Header.Set("X-Actor-Role", role)
				}
			}

			next(ctx)
		}
	}
}

// RequireRole gates a handler on the actor role resolved by JWTAuth.
func RequireRole(role string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Request.Header.Peek("X-Actor-Role")) != role {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			return
		}
		next(ctx)
	}
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return header
}

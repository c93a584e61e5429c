package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/leobar37/gymspace-sub006/internal/shared/errors"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// ActorKey is the context key for the authenticated actor.
	ActorKey = "actor"
)

// Capabilities checked by the HTTP edge.
const (
	CapabilityAll                 = "ALL"
	CapabilityPlansRead           = "PLANS_READ"
	CapabilityPlansManage         = "PLANS_MANAGE"
	CapabilitySubscriptionsRead   = "SUBSCRIPTIONS_READ"
	CapabilitySubscriptionsManage = "SUBSCRIPTIONS_MANAGE"
	CapabilityRequestsCreate      = "REQUESTS_CREATE"
	CapabilityRequestsApprove     = "REQUESTS_APPROVE"
	CapabilityAnalyticsRead       = "ANALYTICS_READ"
	CapabilityPaymentsNotify      = "PAYMENTS_NOTIFY"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// RoleSet maps a role name to the capabilities it grants.
type RoleSet map[string][]string

// Capabilities returns the union of capabilities granted by roles. Unknown roles grant nothing.
func (r RoleSet) Capabilities(roles []string) map[string]struct{} {
	caps := make(map[string]struct{})
	for _, role := range roles {
		for _, c := range r[strings.ToLower(role)] {
			caps[strings.ToUpper(c)] = struct{}{}
		}
	}
	return caps
}

// Actor is the authenticated caller.
type Actor struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Roles          []string
	capabilities   map[string]struct{}
}

// Can reports whether the actor holds capability, directly or through ALL.
func (a *Actor) Can(capability string) bool {
	if _, ok := a.capabilities[CapabilityAll]; ok {
		return true
	}
	_, ok := a.capabilities[capability]
	return ok
}

// CanAccessOrganization reports whether the actor may act on orgID. Holders of
// SUBSCRIPTIONS_MANAGE act on any organization, everyone else only on their own.
func (a *Actor) CanAccessOrganization(orgID uuid.UUID) bool {
	return a.Can(CapabilitySubscriptionsManage) || (a.OrganizationID != uuid.Nil && a.OrganizationID == orgID)
}

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
	OrganizationID string   `json:"org_id,omitempty"`
	Roles          []string `json:"roles"`
}

// ActorValidator resolves a bearer token into an actor.
type ActorValidator interface {
	Validate(token string) (*Actor, error)
}

// TokenValidator validates HMAC-signed access tokens.
type TokenValidator struct {
	secret []byte
	issuer string
	roles  RoleSet
}

// NewTokenValidator creates a new token validator.
func NewTokenValidator(secret, issuer string, roles RoleSet) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer, roles: roles}
}

// Validate parses and verifies token.
func (v *TokenValidator) Validate(token string) (*Actor, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	actor := &Actor{
		UserID:       userID,
		Roles:        claims.Roles,
		capabilities: v.roles.Capabilities(claims.Roles),
	}
	if claims.OrganizationID != "" {
		orgID, err := uuid.Parse(claims.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("%w: org_id is not a uuid", ErrInvalidToken)
		}
		actor.OrganizationID = orgID
	}
	return actor, nil
}

// Issue signs a token for the given identity.
func (v *TokenValidator) Issue(userID, orgID uuid.UUID, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
	if orgID != uuid.Nil {
		claims.OrganizationID = orgID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Auth returns a middleware that requires a valid bearer token and stores the actor.
func Auth(validator ActorValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abort(c, apperrors.Unauthorized("Authorization header required"))
			return
		}

		actor, err := validator.Validate(token)
		if err != nil {
			abort(c, apperrors.NewAppError("INVALID_TOKEN", "Invalid or expired token", http.StatusUnauthorized, err))
			return
		}

		c.Set(ActorKey, actor)
		c.Next()
	}
}

// RequireCapability returns a middleware that admits actors holding any of capabilities.
func RequireCapability(capabilities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			abort(c, apperrors.Unauthorized(""))
			return
		}
		for _, capability := range capabilities {
			if actor.Can(capability) {
				c.Next()
				return
			}
		}
		abort(c, apperrors.Forbidden("missing capability "+strings.Join(capabilities, " or ")))
	}
}

// GetActor returns the authenticated actor.
func GetActor(c *gin.Context) (*Actor, bool) {
	if val, exists := c.Get(ActorKey); exists {
		if actor, ok := val.(*Actor); ok {
			return actor, true
		}
	}
	return nil, false
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}
	return ""
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}

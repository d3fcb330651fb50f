package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"xdao.co/certanchor/cert"
)

const actorKey = "actor"

// Claims is the JWT payload: sub is the user id, org the organization id and
// owner whether the user owns that organization.
type Claims struct {
	OrganizationID string `json:"org"`
	Owner          bool   `json:"owner,omitempty"`
	jwt.RegisteredClaims
}

// Auth issues and verifies HS256 tokens.
type Auth struct {
	Secret string
	Issuer string
}

func (a Auth) GenerateToken(actor cert.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" || actor.OrganizationID == "" {
		return "", errors.New("required inputs are missing to generate token")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		OrganizationID: actor.OrganizationID,
		Owner:          actor.IsOwner,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString([]byte(a.Secret))
}

// VerifyToken accepts "Bearer <token>" or a bare token and returns the actor.
func (a Auth) VerifyToken(tokenString string) (cert.Actor, error) {
	tokenString = strings.TrimSpace(tokenString)
	if strings.HasPrefix(strings.ToLower(tokenString), "bearer ") {
		tokenString = strings.TrimSpace(tokenString[len("bearer "):])
	}
	if tokenString == "" {
		return cert.Actor{}, errors.New("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.Secret), nil
	}, opts...)
	if err != nil {
		return cert.Actor{}, err
	}
	if claims.Subject == "" {
		return cert.Actor{}, errors.New("token has no subject")
	}
	return cert.Actor{ID: claims.Subject, OrganizationID: claims.OrganizationID, IsOwner: claims.Owner}, nil
}

// RequireAuth rejects requests without a valid bearer token.
func (a Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := a.VerifyToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": requestID(c),
				"error":      gin.H{"kind": "Unauthorized", "message": "a valid bearer token is required"},
			})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) cert.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(cert.Actor); ok {
			return a
		}
	}
	return cert.Actor{}
}

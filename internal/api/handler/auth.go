package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"heartline/backend/internal/models"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
)

const identityKey = "identity"

// generateJWT signs an identity token: {user_id, roles, pseudonym}.
func (h *Handler) generateJWT(identity models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"user_id":   identity.UserID,
		"roles":     identity.Roles,
		"pseudonym": identity.Pseudonym,
		"exp":       time.Now().Add(time.Hour * 72).Unix(),
		"iss":       "heartline-core",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// validateJWT parses and verifies a token, returning the embedded identity.
func (h *Handler) validateJWT(tokenString string) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, errors.New("invalid claims")
	}

	identity := models.Identity{}
	identity.UserID, _ = claims["user_id"].(string)
	identity.Pseudonym, _ = claims["pseudonym"].(string)
	if rawRoles, ok := claims["roles"].([]interface{}); ok {
		for _, r := range rawRoles {
			if role, ok := r.(string); ok {
				identity.Roles = append(identity.Roles, role)
			}
		}
	}
	if identity.UserID == "" {
		return models.Identity{}, errors.New("token missing user_id")
	}
	return identity, nil
}

type registerRequest struct {
	Pseudonym      string   `json:"pseudonym" binding:"required"`
	Roles          []string `json:"roles" binding:"required"`
	Interests      []string `json:"interests"`
	Languages      []string `json:"languages"`
	ListenerTopics []string `json:"listener_topics"`
}

// IssueToken is the development stand-in for the identity gateway: it
// creates the user row and returns a signed identity token. Production
// deployments front this with the real gateway.
func (h *Handler) IssueToken(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pseudonym and roles required"})
		return
	}

	user := &models.User{
		Pseudonym:            req.Pseudonym,
		Roles:                pq.StringArray(req.Roles),
		Interests:            pq.StringArray(req.Interests),
		Languages:            pq.StringArray(req.Languages),
		ListenerTopics:       pq.StringArray(req.ListenerTopics),
		ListenerAvailability: models.AvailabilityUnavailable,
		IsActive:             true,
	}
	if err := h.Storage.SaveUser(user); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	identity := models.Identity{UserID: user.ID, Roles: req.Roles, Pseudonym: req.Pseudonym}
	token, err := h.generateJWT(identity)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": user.ID})
}

// AuthRequired validates the bearer token and rejects banned users.
func (h *Handler) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization token missing"})
			return
		}

		identity, err := h.validateJWT(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token or expired"})
			return
		}

		if banned, err := h.Storage.IsUserBanned(identity.UserID); err == nil && banned {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account suspended"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RoleRequired gates a route on a capability in the identity's role set.
func (h *Handler) RoleRequired(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := currentIdentity(c)
		for _, r := range identity.Roles {
			if r == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

func currentIdentity(c *gin.Context) models.Identity {
	v, _ := c.Get(identityKey)
	identity, _ := v.(models.Identity)
	return identity
}

// bearerToken extracts the token from the Authorization header, falling
// back to the query string for WebSocket upgrades.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}

package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/pkg/mylogger"
)

const (
	ProfileCookie = "profile_id"

	localsProfile  = "profileId"
	localsIdentity = "identity"

	profileCookieTTL = 365 * 24 * time.Hour
)

// NewProfileMiddleware pins every request to a profile namespace, issuing a cookie on first visit.
func NewProfileMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var profileID string
		if parsed, err := uuid.Parse(c.Cookies(ProfileCookie)); err == nil {
			// String allocates, so the id outlives the request buffer
			profileID = parsed.String()
		} else {
			profileID = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     ProfileCookie,
				Value:    profileID,
				Path:     "/",
				Expires:  time.Now().Add(profileCookieTTL),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(localsProfile, profileID)
		c.SetUserContext(mylogger.WithProfile(c.UserContext(), profileID))

		return c.Next()
	}
}

// NewIdentityMiddleware accepts an optional bearer token. No header means guest; a bad token is
// rejected. onIdentity runs for every authenticated request.
func NewIdentityMiddleware(issuer *identity.Issuer, onIdentity func(profileID string, id identity.Identity)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			c.Locals(localsIdentity, identity.Identity{})
			return c.Next()
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid header format"})
		}

		id, err := issuer.Parse(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid token"})
		}

		c.Locals(localsIdentity, id)
		if onIdentity != nil {
			onIdentity(ProfileID(c), id)
		}

		return c.Next()
	}
}

func ProfileID(c *fiber.Ctx) string {
	profileID, _ := c.Locals(localsProfile).(string)
	return profileID
}

func Identity(c *fiber.Ctx) identity.Identity {
	id, _ := c.Locals(localsIdentity).(identity.Identity)
	return id
}

package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/course-store/internal/identity"
	"github.com/sakashimaa/course-store/internal/transport/http/handler"
	"github.com/sakashimaa/course-store/internal/transport/http/middleware"
)

type Handlers struct {
	Auth        *handler.AuthHandler
	Cart        *handler.CartHandler
	Checkout    *handler.CheckoutHandler
	Order       *handler.OrderHandler
	Preferences *handler.PreferencesHandler
	Contact     *handler.ContactHandler
	Health      *handler.HealthHandler
}

// RegisterRoutes mounts every route. onIdentity is called for each authenticated request, which
// keeps a signed-in profile on the periodic sync list.
func RegisterRoutes(app *fiber.App, h *Handlers, issuer *identity.Issuer, onIdentity func(string, identity.Identity)) {
	app.Get("/health", h.Health.Health)

	profile := middleware.NewProfileMiddleware()
	ident := middleware.NewIdentityMiddleware(issuer, onIdentity)

	authGroup := app.Group("/auth", profile)
	authGroup.Post("/demo-login", h.Auth.DemoLogin)
	authGroup.Post("/logout", h.Auth.Logout)

	api := app.Group("/api", profile, ident)
	api.Get("/me", h.Auth.Me)

	cart := api.Group("/cart")
	cart.Get("", h.Cart.Get)
	cart.Delete("", h.Cart.Clear)
	cart.Post("/items", h.Cart.AddItem)
	cart.Patch("/items/:id", h.Cart.UpdateItem)
	cart.Delete("/items/:id", h.Cart.RemoveItem)
	cart.Post("/sync", h.Cart.Sync)

	checkout := api.Group("/checkout")
	checkout.Post("", h.Checkout.Start)
	checkout.Get("", h.Checkout.Get)
	checkout.Post("/promo", h.Checkout.ApplyPromo)
	checkout.Post("/payment", h.Checkout.SelectPayment)
	checkout.Post("/next", h.Checkout.Next)
	checkout.Post("/back", h.Checkout.Back)
	checkout.Post("/retry", h.Checkout.Retry)

	api.Get("/orders", h.Order.List)

	prefs := api.Group("/preferences")
	prefs.Get("/theme", h.Preferences.GetTheme)
	prefs.Put("/theme", h.Preferences.SetTheme)

	api.Post("/contact", h.Contact.Send)
}

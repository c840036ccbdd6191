package router

import (
	"github.com/JonasBergmann/CompanionDeck/app/controllers"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/constants"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/middleware"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/oauth"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/session"

	"github.com/gofiber/fiber/v2"
	gothfiber "github.com/shareed2k/goth_fiber"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// init oauth providers
	oauth.Setup()

	// Apply UserContext middleware globally as first middleware
	app.Use(middleware.UserContextMiddleware)

	h.registerPublicRoutes(app)
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"name": "CompanionDeck", "status": "ok"})
	})
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// OAuth sign-in (Google, Discord)
	app.Get("/auth/:provider", gothfiber.BeginAuthHandler)
	app.Get("/auth/:provider/callback", controllers.HandleOAuthCallback)

	// Payment provider notifications. Raw-body endpoint, signature-checked in
	// the handler; deliberately outside the rate-limited /api group so a burst
	// of redeliveries is never throttled into provider-side retries.
	app.Post(constants.StripeWebhookRoute, controllers.HandleStripeWebhook)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

package router

import (
	"github.com/JonasBergmann/CompanionDeck/app/controllers"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/constants"
	"github.com/JonasBergmann/CompanionDeck/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group(constants.APIRoute, limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group(constants.APIv1Route)

	auth := v1.Group("/auth")
	auth.Post("/register", controllers.HandleRegister)
	auth.Post("/login", controllers.HandleLogin)
	auth.Post("/logout", middleware.RequireAPISessionAuth, controllers.HandleLogout)

	v1.Get("/account", middleware.RequireAPISessionAuth, controllers.HandleGetAccount)

	assistants := v1.Group("/assistants", middleware.RequireAPISessionAuth)
	assistants.Get("/", controllers.HandleListAssistants)
	assistants.Post("/", controllers.HandleCreateAssistants)
	assistants.Put("/:id", controllers.HandleUpdateAssistant)
	assistants.Delete("/:id", controllers.HandleDeleteAssistant)

	v1.Post("/chat", middleware.RequireAPISessionAuth, controllers.HandleChatCompletion)

	billing := v1.Group("/billing", middleware.RequireAPISessionAuth)
	billing.Post("/checkout", controllers.HandleCreateCheckout)
	billing.Post("/reconcile", controllers.HandleCheckoutReconcile)
	billing.Post("/cancel", controllers.HandleCancelSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/config"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/handlers"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/middleware"
	"github.com/mazzuccoda/e-comerce-floreria-sub000/internal/services"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config) {
	notifier := services.NewWebhookNotifier(cfg.NotifyWebhookURL)
	currency := services.NewCurrencyService(cfg.CurrencyMargin, cfg.EmergencyUSDRate)

	cartService := services.NewCartService(db)
	shippingService := services.NewShippingService(db)
	checkoutService := services.NewCheckoutService(db, cartService, shippingService, notifier)
	orderService := services.NewOrderService(db, notifier)
	mercadoPago := services.NewMercadoPagoService(cfg.MercadoPagoAccessToken, cfg.BaseURL, cfg.FrontendURL)
	paypal := services.NewPayPalService(cfg.PayPalClientID, cfg.PayPalSecret, cfg.PayPalBaseURL, cfg.FrontendURL, currency)
	transfer := services.NewBankTransferGateway(cfg.FrontendURL)

	authHandler := handlers.NewAuthHandler(db, cfg, cartService)
	productHandler := handlers.NewProductHandler(db)
	cartHandler := handlers.NewCartHandler(cartService)
	shippingHandler := handlers.NewShippingHandler(db, shippingService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService)
	paymentHandler := handlers.NewPaymentHandler(db, orderService, mercadoPago, paypal, transfer)
	orderHandler := handlers.NewOrderHandler(db, orderService)
	abandonedHandler := handlers.NewAbandonedCartHandler(db)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	// Catalog (read-only)
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/:id", productHandler.GetProduct)

	// Cart: anonymous via X-Session-Token, authenticated via bearer token
	optionalAuth := middleware.OptionalAuthMiddleware(cfg)
	cart := api.Group("/cart", optionalAuth)
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Put("/items/:productID", cartHandler.UpdateItem)
	cart.Delete("/items/:productID", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.ClearCart)
	cart.Post("/merge", middleware.AuthMiddleware(cfg), cartHandler.MergeCart)

	// Shipping calculator
	api.Post("/shipping/calculate", shippingHandler.Calculate)

	// Checkout (guest-friendly)
	api.Post("/checkout", optionalAuth, checkoutHandler.Checkout)

	// Payments
	pedidos := api.Group("/pedidos")
	pedidos.Post("/:id/payment", optionalAuth, paymentHandler.CreatePayment)
	pedidos.Get("/:id/payment/paypal/success", paymentHandler.PayPalSuccess)
	pedidos.Get("/:id/payment/paypal/cancel", paymentHandler.PayPalCancel)
	api.Get("/payments/paypal", paymentHandler.PayPalDetails)

	// Provider webhooks: must always acknowledge with 200
	api.Post("/webhook/mercadopago", paymentHandler.MercadoPagoWebhook)

	// Abandoned carts: public record endpoint, API-key-protected polling
	api.Post("/carrito-abandonado", abandonedHandler.Record)
	automation := api.Group("", middleware.APIKeyMiddleware(cfg.AbandonedCartsAPIKey))
	automation.Get("/carritos-pendientes", abandonedHandler.ListPending)
	automation.Put("/carritos-pendientes/:id/recordatorio", abandonedHandler.MarkReminded)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg))
	protected.Get("/orders", orderHandler.ListOrders)
	protected.Get("/orders/:id", orderHandler.GetOrder)
	protected.Put("/pedidos/:id/estado", orderHandler.UpdateStatus)
	protected.Post("/pedidos/:id/confirmar", orderHandler.ConfirmOrder)
}

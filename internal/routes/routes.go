package routes

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/example/glowbeauty/internal/config"
	"github.com/example/glowbeauty/internal/handlers"
	"github.com/example/glowbeauty/internal/middleware"
	"github.com/example/glowbeauty/internal/models"
	"github.com/example/glowbeauty/internal/services"
)

// Dependencies are the shared resources handlers are built from.
type Dependencies struct {
	DB       *gorm.DB
	Config   *config.Config
	Cache    *services.CatalogCache
	Notifier *services.Notifier
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, deps Dependencies) {
	db, cfg := deps.DB, deps.Config

	rules := services.PricingRules{
		ShippingFlatFee:       cfg.ShippingFlatFee,
		FreeShippingThreshold: cfg.FreeShippingThreshold,
		TaxRate:               cfg.TaxRate,
	}
	rewardService := services.NewRewardService(db, cfg.RewardPointsPerUnit)
	checkoutService := services.NewCheckoutService(db, rules, cfg.Currency, deps.Notifier, deps.Cache)
	orderService := services.NewOrderService(db, rewardService, deps.Notifier, deps.Cache)
	stockService := services.NewStockService(db, deps.Notifier, deps.Cache)
	purchaseService := services.NewPurchaseService(db, deps.Notifier, deps.Cache)
	returnService := services.NewReturnService(db, rewardService, deps.Notifier, deps.Cache)
	reviewService := services.NewReviewService(db, deps.Cache)

	authHandler := handlers.NewAuthHandler(db, cfg)
	catalogHandler := handlers.NewCatalogHandler(db, deps.Cache)
	productHandler := handlers.NewProductHandler(db, deps.Cache)
	cartHandler := handlers.NewCartHandler(db)
	orderHandler := handlers.NewOrderHandler(db, checkoutService, orderService)
	profileHandler := handlers.NewProfileHandler(db, rewardService)
	adminHandler := handlers.NewAdminHandler(db, reviewService, rewardService)
	purchaseHandler := handlers.NewPurchaseHandler(db, purchaseService)
	stockHandler := handlers.NewStockHandler(db, stockService)
	reviewHandler := handlers.NewReviewHandler(db, reviewService)
	returnHandler := handlers.NewReturnHandler(db, returnService)
	wishlistHandler := handlers.NewWishlistHandler(db)
	notificationHandler := handlers.NewNotificationHandler(db)
	healthHandler := handlers.NewHealthHandler(db)

	authRequired := middleware.AuthMiddleware(cfg)
	optionalAuth := middleware.OptionalAuth(cfg)
	activeAccount := middleware.ActiveAccount(db)
	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleManager)
	staff := []fiber.Handler{authRequired, activeAccount, staffOnly}

	api := app.Group("/api")
	api.Get("/health", healthHandler.Check)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/profile", authRequired, authHandler.GetProfile)
	auth.Put("/profile", authRequired, authHandler.UpdateProfile)
	auth.Put("/change-password", authRequired, authHandler.ChangePassword)

	// Catalog routes
	categories := api.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Get("/:id", catalogHandler.GetCategory)
	categories.Post("/", append(staff, catalogHandler.CreateCategory)...)
	categories.Put("/:id", append(staff, catalogHandler.UpdateCategory)...)
	categories.Delete("/:id", append(staff, catalogHandler.DeleteCategory)...)

	// Products
	products := api.Group("/products", optionalAuth)
	productHandler.RegisterProductRoutes(products, staff...)

	// Cart
	cart := api.Group("/cart", optionalAuth)
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/items", cartHandler.AddItem)
	cart.Put("/items/:id", cartHandler.UpdateItem)
	cart.Delete("/items/:id", cartHandler.RemoveItem)
	cart.Delete("/", cartHandler.ClearCart)
	cart.Post("/merge", authRequired, cartHandler.MergeCart)

	// Orders
	orders := api.Group("/orders")
	orders.Post("/", optionalAuth, activeAccount, orderHandler.CreateOrder)
	orders.Post("/quote", optionalAuth, orderHandler.QuoteOrder)
	orders.Get("/number/:orderNumber", optionalAuth, orderHandler.GetOrderByNumber)

	ordersAdmin := orders.Group("/admin", staff...)
	ordersAdmin.Get("/", orderHandler.AdminListOrders)
	ordersAdmin.Get("/stats", orderHandler.OrderStats)
	ordersAdmin.Get("/:id", orderHandler.AdminGetOrder)
	ordersAdmin.Put("/:id/status", orderHandler.UpdateOrderStatus)
	ordersAdmin.Put("/:id/payment-status", orderHandler.UpdatePaymentStatus)

	orders.Get("/", authRequired, orderHandler.ListMyOrders)
	orders.Get("/:id", authRequired, orderHandler.GetMyOrder)
	orders.Put("/:id/cancel", authRequired, orderHandler.CancelOrder)

	// Addresses
	addresses := api.Group("/addresses", authRequired)
	addresses.Get("/", profileHandler.ListAddresses)
	addresses.Post("/", profileHandler.CreateAddress)
	addresses.Get("/:id", profileHandler.GetAddress)
	addresses.Put("/:id", profileHandler.UpdateAddress)
	addresses.Put("/:id/default", profileHandler.SetDefaultAddress)
	addresses.Delete("/:id", profileHandler.DeleteAddress)

	// Back-office
	admin := api.Group("/admin", staff...)
	admin.Get("/dashboard", adminHandler.DashboardStats)
	admin.Get("/customers", adminHandler.ListCustomers)
	admin.Get("/customers/:id", adminHandler.GetCustomer)
	admin.Put("/customers/:id/status", adminHandler.UpdateCustomerStatus)
	admin.Get("/reviews", adminHandler.ListReviews)
	admin.Put("/reviews/:id/status", adminHandler.UpdateReviewStatus)
	admin.Delete("/reviews/:id", adminHandler.DeleteReview)
	admin.Get("/coupons", adminHandler.ListCoupons)
	admin.Post("/coupons", adminHandler.CreateCoupon)
	admin.Get("/coupons/:id", adminHandler.GetCoupon)
	admin.Put("/coupons/:id", adminHandler.UpdateCoupon)
	admin.Delete("/coupons/:id", adminHandler.DeleteCoupon)

	purchase := api.Group("/purchase", staff...)
	purchase.Get("/suppliers", purchaseHandler.ListSuppliers)
	purchase.Post("/suppliers", purchaseHandler.CreateSupplier)
	purchase.Get("/suppliers/:id", purchaseHandler.GetSupplier)
	purchase.Put("/suppliers/:id", purchaseHandler.UpdateSupplier)
	purchase.Delete("/suppliers/:id", purchaseHandler.DeleteSupplier)
	purchase.Get("/orders", purchaseHandler.ListPurchaseOrders)
	purchase.Post("/orders", purchaseHandler.CreatePurchaseOrder)
	purchase.Get("/orders/:id", purchaseHandler.GetPurchaseOrder)
	purchase.Put("/orders/:id/status", purchaseHandler.UpdatePurchaseOrderStatus)
	purchase.Post("/orders/:id/receive", purchaseHandler.ReceivePurchaseOrder)
	purchase.Delete("/orders/:id", purchaseHandler.DeletePurchaseOrder)

	stock := api.Group("/stock", staff...)
	stock.Get("/", stockHandler.ListStock)
	stock.Get("/low-stock", stockHandler.LowStock)
	stock.Get("/movements", stockHandler.ListMovements)
	stock.Put("/bulk", stockHandler.BulkUpdateStock)
	stock.Put("/:productId", stockHandler.AdjustStock)

	// Reviews
	reviews := api.Group("/reviews")
	reviews.Get("/product/:productId", reviewHandler.ListProductReviews)
	reviews.Get("/mine", authRequired, reviewHandler.ListMyReviews)
	reviews.Post("/", authRequired, reviewHandler.CreateReview)
	reviews.Put("/:id", authRequired, reviewHandler.UpdateReview)
	reviews.Delete("/:id", authRequired, reviewHandler.DeleteReview)

	// Returns
	returns := api.Group("/returns", authRequired)
	returnsAdmin := returns.Group("/admin", activeAccount, staffOnly)
	returnsAdmin.Get("/", returnHandler.AdminListReturns)
	returnsAdmin.Get("/:id", returnHandler.AdminGetReturn)
	returnsAdmin.Put("/:id/status", returnHandler.UpdateReturnStatus)
	returns.Post("/", returnHandler.CreateReturn)
	returns.Get("/", returnHandler.ListMyReturns)
	returns.Get("/:id", returnHandler.GetMyReturn)

	// Rewards
	rewards := api.Group("/rewards", authRequired)
	rewards.Post("/admin/adjust", activeAccount, staffOnly, adminHandler.AdjustRewards)
	rewards.Get("/", profileHandler.RewardBalance)
	rewards.Get("/transactions", profileHandler.ListRewardTransactions)
	rewards.Post("/redeem", profileHandler.RedeemRewards)

	// Wishlist
	wishlist := api.Group("/wishlist", authRequired)
	wishlist.Get("/", wishlistHandler.ListWishlist)
	wishlist.Post("/", wishlistHandler.AddToWishlist)
	wishlist.Delete("/:productId", wishlistHandler.RemoveFromWishlist)
	wishlist.Post("/:productId/move-to-cart", wishlistHandler.MoveToCart)

	// Notifications
	notifications := api.Group("/notifications", authRequired)
	notifications.Get("/", notificationHandler.ListNotifications)
	notifications.Get("/unread-count", notificationHandler.UnreadCount)
	notifications.Put("/read-all", notificationHandler.MarkAllRead)
	notifications.Put("/:id/read", notificationHandler.MarkRead)
	notifications.Delete("/:id", notificationHandler.DeleteNotification)
}

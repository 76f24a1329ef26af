package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/events"
	"github.com/example/storefront/internal/handlers"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/search"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/storage"
)

// Deps carries the shared components handlers are built from.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Checkout  *services.CheckoutService
	Store     storage.ImageStore
	Index     search.ProductIndex
	Publisher events.Publisher

	// AuthLimit caps auth requests per IP per minute; zero disables the limiter.
	AuthLimit int
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, d Deps) {
	authHandler := handlers.NewAuthHandler(d.DB, d.Config)
	productHandler := handlers.NewProductHandler(d.DB, d.Store, d.Index, d.Publisher)
	cartHandler := handlers.NewCartHandler(d.DB)
	addressHandler := handlers.NewAddressHandler(d.DB)
	couponHandler := handlers.NewCouponHandler(d.DB)
	orderHandler := handlers.NewOrderHandler(d.DB, d.Checkout, d.Publisher)
	wishlistHandler := handlers.NewWishlistHandler(d.DB)
	settingsHandler := handlers.NewSettingsHandler(d.DB, d.Store)
	adminHandler := handlers.NewAdminHandler(d.DB)
	profileHandler := handlers.NewProfileHandler(d.DB, d.Config)
	catalogHandler := handlers.NewCatalogHandler(d.DB)

	authRequired := middleware.AuthMiddleware(d.Config)
	adminOnly := middleware.RequireSuperAdmin()

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	if d.AuthLimit > 0 {
		auth.Use(limiter.New(limiter.Config{
			Max:        d.AuthLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return fiber.NewError(fiber.StatusTooManyRequests, "too many requests, please try again later")
			},
		}))
	}
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh-token", authHandler.RefreshToken)
	auth.Post("/logout", authHandler.Logout)
	auth.Get("/check-auth", authRequired, authHandler.CheckAuth)

	// Products; static paths before /:id
	products := api.Group("/products")
	products.Get("/", productHandler.ListProducts)
	products.Get("/search", productHandler.SearchProducts)
	products.Get("/filters", catalogHandler.GetFilters)
	products.Get("/admin/all", authRequired, adminOnly, productHandler.ListAllProducts)
	products.Post("/upload-image", authRequired, adminOnly, productHandler.UploadImage)
	products.Post("/", authRequired, adminOnly, productHandler.CreateProduct)
	products.Get("/:id", productHandler.GetProduct)
	products.Put("/:id", authRequired, adminOnly, productHandler.UpdateProduct)
	products.Delete("/:id", authRequired, adminOnly, productHandler.DeleteProduct)

	profile := api.Group("/profile", authRequired)
	profile.Get("/", profileHandler.GetProfile)
	profile.Put("/", profileHandler.UpdateProfile)
	profile.Put("/password", profileHandler.ChangePassword)

	cart := api.Group("/cart", authRequired)
	cart.Get("/", cartHandler.GetCart)
	cart.Post("/add", cartHandler.AddToCart)
	cart.Post("/merge", cartHandler.MergeCart)
	cart.Put("/update/:itemId", cartHandler.UpdateCartItem)
	cart.Delete("/remove/:itemId", cartHandler.RemoveCartItem)
	cart.Delete("/clear", cartHandler.ClearCart)

	address := api.Group("/address", authRequired)
	address.Get("/", addressHandler.ListAddresses)
	address.Post("/", addressHandler.CreateAddress)
	address.Put("/:id/default", addressHandler.SetDefaultAddress)
	address.Put("/:id", addressHandler.UpdateAddress)
	address.Delete("/:id", addressHandler.DeleteAddress)

	coupon := api.Group("/coupon", authRequired)
	coupon.Post("/validate", couponHandler.ValidateCoupon)
	coupon.Get("/", adminOnly, couponHandler.ListCoupons)
	coupon.Post("/", adminOnly, couponHandler.CreateCoupon)
	coupon.Put("/:id", adminOnly, couponHandler.UpdateCoupon)
	coupon.Delete("/:id", adminOnly, couponHandler.DeleteCoupon)

	order := api.Group("/order", authRequired)
	order.Post("/create-paypal-order", orderHandler.CreatePayPalOrder)
	order.Post("/capture-paypal-order", orderHandler.CapturePayPalOrder)
	order.Post("/create-final-order", orderHandler.CreateFinalOrder)
	order.Get("/get-single-order/:id", orderHandler.GetSingleOrder)
	order.Get("/get-order-by-user-id", orderHandler.GetOrdersByUser)
	order.Get("/get-all-orders-for-admin", adminOnly, orderHandler.GetAllOrdersForAdmin)
	order.Put("/:orderId/status", adminOnly, orderHandler.UpdateOrderStatus)

	wishlist := api.Group("/wishlist", authRequired)
	wishlist.Get("/", wishlistHandler.GetWishlist)
	wishlist.Post("/add", wishlistHandler.AddToWishlist)
	wishlist.Delete("/remove/:productId", wishlistHandler.RemoveFromWishlist)

	settings := api.Group("/settings")
	settings.Get("/banners", settingsHandler.ListBanners)
	settings.Post("/banners", authRequired, adminOnly, settingsHandler.CreateBanner)
	settings.Delete("/banners/:id", authRequired, adminOnly, settingsHandler.DeleteBanner)
	settings.Get("/featured-products", settingsHandler.ListFeaturedProducts)
	settings.Post("/featured-products", authRequired, adminOnly, settingsHandler.SetFeaturedProducts)

	admin := api.Group("/admin", authRequired, adminOnly)
	admin.Get("/dashboard", adminHandler.DashboardStats)
}

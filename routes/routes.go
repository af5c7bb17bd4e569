package routes

import (
	"checkout-service/controllers"
	"checkout-service/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RegisterCheckoutRoutes sets up checkout and payment attempt routes.
func RegisterCheckoutRoutes(r *gin.Engine, cc *controllers.CheckoutController) {
	checkoutRoutes := r.Group("/checkout")
	checkoutRoutes.Use(middleware.AuthMiddleware())
	checkoutRoutes.Use(middleware.RateLimiter(rate.Limit(5), 10))

	checkoutRoutes.GET("/key", cc.GetKey)
	checkoutRoutes.POST("", cc.CreateSession)
	checkoutRoutes.POST("/verify", cc.VerifyPayment)
	checkoutRoutes.POST("/cancel", cc.CancelPayment)
	checkoutRoutes.GET("/result", cc.AwaitResult)
}

// RegisterOrderRoutes sets up order read and admin routes.
func RegisterOrderRoutes(r *gin.Engine, oc *controllers.OrderController) {
	orderRoutes := r.Group("/orders")
	orderRoutes.Use(middleware.AuthMiddleware())

	orderRoutes.GET("", oc.GetUserOrders)
	orderRoutes.GET("/:id", oc.GetOrderByID)

	adminRoutes := orderRoutes.Group("")
	adminRoutes.Use(middleware.AdminOnly())
	adminRoutes.GET("/all/list", oc.GetAllOrders)
	adminRoutes.PATCH("/:id/status", oc.UpdateStatus)
}

// RegisterCouponRoutes sets up all coupon-related routes.
func RegisterCouponRoutes(r *gin.Engine, cc *controllers.CouponController) {
	couponRoutes := r.Group("/coupons")
	couponRoutes.Use(middleware.AuthMiddleware())
	couponRoutes.POST("/validate", cc.ValidateCoupon)
	couponRoutes.GET("/:code", cc.GetCoupon)

	adminRoutes := couponRoutes.Group("")
	adminRoutes.Use(middleware.AdminOnly())
	adminRoutes.POST("", cc.CreateCoupon)
	adminRoutes.GET("", cc.ListCoupons)
	adminRoutes.DELETE("/:code", cc.DeactivateCoupon)
}

// RegisterWebhookRoutes sets up gateway webhook routes. These are
// authenticated by signature, not by user identity.
func RegisterWebhookRoutes(r *gin.Engine, wc *controllers.WebhookController) {
	r.POST("/webhooks/razorpay", wc.RazorpayWebhook)
}

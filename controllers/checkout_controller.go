package controllers

import (
	"net/http"

	"checkout-service/middleware"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
)

// CheckoutController handles checkout session and payment attempt
// endpoints.
type CheckoutController struct {
	checkout *services.CheckoutService
	verifier *services.VerificationService
}

// NewCheckoutController creates a CheckoutController.
func NewCheckoutController(checkout *services.CheckoutService, verifier *services.VerificationService) *CheckoutController {
	return &CheckoutController{checkout: checkout, verifier: verifier}
}

// GetKey handles GET /checkout/key: the active attempt key, stable
// until the attempt resolves. A popup-blocked retry reuses this key
// and lands on the same order.
func (cc *CheckoutController) GetKey(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	key, svcErr := cc.checkout.CurrentKey(c.Request.Context(), userID)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"idempotency_key": key})
}

// CreateSession handles POST /checkout: creates or idempotently
// resumes a payment session.
func (cc *CheckoutController) CreateSession(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	session, svcErr := cc.checkout.CreateSession(c.Request.Context(), userID, &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Code})
		return
	}

	c.JSON(http.StatusCreated, session)
}

// VerifyPayment handles POST /checkout/verify: the gateway callback
// with the payment signature.
func (cc *CheckoutController) VerifyPayment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	order, svcErr := cc.verifier.VerifyPayment(c.Request.Context(), userID, &req)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true, "order": order})
}

// CancelPayment handles POST /checkout/cancel: the user closed the
// payment window without completing. The order stays pending and the
// cart is retained.
func (cc *CheckoutController) CancelPayment(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req struct {
		IdempotencyKey string `json:"idempotency_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	if svcErr := cc.verifier.ReportCancelled(c.Request.Context(), userID, req.IdempotencyKey); svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Code})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// AwaitResult handles GET /checkout/result: long-polls the payment
// channel until the attempt resolves once — success, cancelled, or
// timeout.
func (cc *CheckoutController) AwaitResult(c *gin.Context) {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	attemptKey := c.Query("idempotency_key")
	if attemptKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idempotency_key is required"})
		return
	}

	res, svcErr := cc.verifier.AwaitResult(c.Request.Context(), userID, attemptKey)
	if svcErr != nil {
		c.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message, "code": svcErr.Code})
		return
	}

	c.JSON(http.StatusOK, res)
}

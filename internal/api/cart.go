package api

import (
	"net/http"

	"casecommerce/internal/service"

	"github.com/gin-gonic/gin"
)

// addToCart handles POST /cart
func (h *Handler) addToCart(c *gin.Context) {
	var req service.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !h.authorizeUser(c, req.UserID) {
		return
	}

	item, err := h.carts.AddToCart(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, item)
}

// getCart handles GET /cart/:userId
func (h *Handler) getCart(c *gin.Context) {
	userID, ok := idParam(c, "userId")
	if !ok {
		return
	}
	if !h.authorizeUser(c, userID) {
		return
	}

	cart, err := h.carts.GetCart(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cart)
}

// removeFromCart handles DELETE /cart. It answers the same way whether or
// not the product was in the cart.
func (h *Handler) removeFromCart(c *gin.Context) {
	var req service.RemoveFromCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if !h.authorizeUser(c, req.UserID) {
		return
	}

	if err := h.carts.RemoveFromCart(c.Request.Context(), &req); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product removed from cart"})
}

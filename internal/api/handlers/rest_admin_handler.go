package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greendrake/estate/internal/api/middleware"
	"greendrake/estate/internal/logger"
	"greendrake/estate/internal/services"
)

// RestAdminHandler serves the review queues of the admin dashboard. Routes are
// mounted behind middleware.AuthMiddleware and middleware.AdminMiddleware.
type RestAdminHandler struct {
	inquiryService      services.IInquiryService
	verificationService services.IVerificationService
	log                 *logger.Logger
}

// NewRestAdminHandler creates a new RestAdminHandler.
func NewRestAdminHandler(inquiryService services.IInquiryService, verificationService services.IVerificationService) *RestAdminHandler {
	return &RestAdminHandler{
		inquiryService:      inquiryService,
		verificationService: verificationService,
		log:                 logger.Global().Named("rest_admin"),
	}
}

// ListVerifications handles GET /v1/admin/verifications?status=pending&limit=N
func (h *RestAdminHandler) ListVerifications(c *gin.Context) {
	list, err := h.verificationService.ListVerifications(c.Request.Context(), middleware.IdentityFromContext(c), c.Query("status"), queryInt(c, "limit", 0))
	if err != nil {
		writeRestError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": list})
}

// ListInquiries handles GET /v1/admin/inquiries?status=new&limit=N
func (h *RestAdminHandler) ListInquiries(c *gin.Context) {
	list, err := h.inquiryService.ListInquiries(c.Request.Context(), middleware.IdentityFromContext(c), c.Query("status"), queryInt(c, "limit", 0))
	if err != nil {
		writeRestError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inquiries": list})
}

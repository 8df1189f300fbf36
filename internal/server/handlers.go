package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/einvoice/internal/lifecycle"
	"github.com/rezonia/einvoice/internal/model"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateDraft(c *gin.Context) {
	var req CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	lines := make([]model.InvoiceLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = model.InvoiceLine{
			Code:        l.Code,
			Description: l.Description,
			Unit:        l.Unit,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TaxRate:     l.TaxRate,
		}
	}

	draft := lifecycle.Draft{
		Profile:       model.DocumentProfile(req.Profile),
		PaymentMethod: model.PaymentMethod(req.PaymentMethod),
		Buyer:         req.Buyer,
		Lines:         lines,
		Discount:      req.Discount,
		Shipping:      req.Shipping,
		DueDate:       req.DueDate,
		DeliveryDate:  req.DeliveryDate,
	}

	inv, err := s.controller.CreateDraft(c.Request.Context(), c.Param("tenant"), draft)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (s *Server) handleGetInvoice(c *gin.Context) {
	inv, err := s.controller.Invoice(c.Request.Context(), c.Param("tenant"), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleSend(c *gin.Context) {
	inv, err := s.controller.Send(c.Request.Context(), c.Param("tenant"), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleRefreshStatus(c *gin.Context) {
	inv, err := s.controller.RefreshStatus(c.Request.Context(), c.Param("tenant"), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleCancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	inv, err := s.controller.Cancel(c.Request.Context(), c.Param("tenant"), c.Param("id"), req.Reason, req.CounterDocument)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) handleInbox(c *gin.Context) {
	docs, err := s.controller.Inbox(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// writeError maps the pipeline error taxonomy to HTTP statuses
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		validation    *model.ValidationError
		configMissing *model.ConfigurationMissingError
		contention    *model.NumberingContentionError
		transition    *model.StateTransitionError
		credential    *model.CredentialError
		keyUsage      *model.KeyUsageError
		fault         *model.ProtocolFaultError
		transport     *model.TransportFailureError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrInvoiceNotFound):
		status = http.StatusNotFound
	case errors.As(err, &configMissing):
		status = http.StatusNotFound
	case errors.As(err, &transition):
		status = http.StatusConflict
	case errors.As(err, &contention):
		status = http.StatusConflict
	case errors.As(err, &credential), errors.As(err, &keyUsage):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &fault), errors.As(err, &transport):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

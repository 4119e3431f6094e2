package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/marketplace/internal/http/middleware"
	"github.com/nurpe/marketplace/internal/model"
	"github.com/nurpe/marketplace/internal/service"
)

const (
	depositHeader = "deposit_value"
	xlsxMediaType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Handler struct {
	contracts  *service.ContractService
	settlement *service.SettlementService
	reports    *service.ReportService
	log        zerolog.Logger
}

func NewHandler(
	contracts *service.ContractService,
	settlement *service.SettlementService,
	reports *service.ReportService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		contracts:  contracts,
		settlement: settlement,
		reports:    reports,
		log:        log,
	}
}

// Register mounts the profile routes behind authMiddleware and the admin
// routes behind both middlewares. settlementLimit guards the money moving
// routes only.
func (h *Handler) Register(router *gin.Engine, authMiddleware, adminMiddleware, settlementLimit gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)
	protected.GET("/contracts/:id", h.getContract)
	protected.GET("/contracts", h.listContracts)
	protected.GET("/jobs/unpaid", h.listUnpaidJobs)
	protected.POST("/jobs/:id/pay", settlementLimit, h.payJob)
	protected.GET("/jobs/:id/receipt", h.jobReceipt)
	protected.POST("/balances/deposit/:userId", settlementLimit, h.deposit)

	admin := protected.Group("/admin")
	admin.Use(adminMiddleware)
	admin.GET("/best-profession", h.bestProfession)
	admin.GET("/best-clients", h.bestClients)
	admin.GET("/earnings/export", h.exportEarnings)
}

func (h *Handler) getContract(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return
	}

	contract, err := h.contracts.GetContract(c.Request.Context(), id, principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

func (h *Handler) listContracts(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return
	}

	contracts, err := h.contracts.ListContracts(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	c.JSON(http.StatusOK, contracts)
}

func (h *Handler) listUnpaidJobs(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return
	}

	jobs, err := h.contracts.ListUnpaidJobs(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	c.JSON(http.StatusOK, jobs)
}

func (h *Handler) payJob(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.settlement.PayJob(c.Request.Context(), service.PayJobInput{
		JobID:  id,
		Caller: principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment successful", "job": job})
}

func (h *Handler) jobReceipt(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	result, err := h.contracts.JobReceipt(c.Request.Context(), id, principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

func (h *Handler) deposit(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.handleError(c, service.ErrUnauthorized)
		return
	}

	clientID, err := parseID(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	amount, err := depositAmount(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.settlement.Deposit(c.Request.Context(), service.DepositInput{
		ClientID: clientID,
		Amount:   amount,
		Caller:   principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deposit successful", "profile": profile})
}

// depositAmount reads {"amount": ...} from the body and falls back to the
// deposit_value header when the body is empty.
func depositAmount(c *gin.Context) (decimal.Decimal, error) {
	body, err := c.GetRawData()
	if err != nil {
		return decimal.Zero, errors.New("unreadable body")
	}

	if len(bytes.TrimSpace(body)) > 0 {
		var req struct {
			Amount *decimal.Decimal `json:"amount"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.Amount == nil {
			return decimal.Zero, errors.New("invalid amount")
		}
		return *req.Amount, nil
	}

	raw := strings.TrimSpace(c.GetHeader(depositHeader))
	if raw == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.New("invalid deposit_value")
	}
	return amount, nil
}

func (h *Handler) bestProfession(c *gin.Context) {
	input, err := reportInput(c, false)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.reports.BestProfession(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if result == nil {
		result = []model.ProfessionEarnings{}
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) bestClients(c *gin.Context) {
	input, err := reportInput(c, true)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.reports.BestClients(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if result == nil {
		result = []model.ClientPayments{}
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) exportEarnings(c *gin.Context) {
	input, err := reportInput(c, false)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.reports.ExportEarnings(c.Request.Context(), input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, xlsxMediaType, result.Content)
}

func reportInput(c *gin.Context, withLimit bool) (service.ReportInput, error) {
	start, _, err := parseDate(c.Query("start"))
	if err != nil {
		return service.ReportInput{}, fmt.Errorf("start: %w", err)
	}
	end, endIsDate, err := parseDate(c.Query("end"))
	if err != nil {
		return service.ReportInput{}, fmt.Errorf("end: %w", err)
	}

	input := service.ReportInput{PeriodStart: start, PeriodEnd: end, EndIsDate: endIsDate}
	if raw, ok := c.GetQuery("limit"); ok && withLimit {
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || limit <= 0 {
			return service.ReportInput{}, service.ErrInvalidInput
		}
		input.Limit = limit
	}
	return input, nil
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAlreadyPaid):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientFunds), errors.Is(err, service.ErrDepositLimitExceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, service.ErrInvalidInput
	}
	return uint(id), nil
}

const dateLayout = "2006-01-02"

// parseDate also reports whether raw was a bare calendar date.
func parseDate(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, service.ErrInvalidInput
	}
	if parsed, err := time.Parse(dateLayout, raw); err == nil {
		return parsed, true, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, false, nil
		}
	}
	return time.Time{}, false, service.ErrInvalidInput
}

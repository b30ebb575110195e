// Package handler содержит HTTP-обработчики API платёжного моста.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/rwa-bridge/internal/metrics"
	"github.com/mmeshcher/rwa-bridge/internal/middleware"
	"github.com/mmeshcher/rwa-bridge/internal/model"
	"github.com/mmeshcher/rwa-bridge/internal/pricing"
	"github.com/mmeshcher/rwa-bridge/internal/repository"
	"github.com/mmeshcher/rwa-bridge/internal/service"
	"github.com/mmeshcher/rwa-bridge/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetSettlement(ctx context.Context, orderID string) (*model.Settlement, error)
	Pay(ctx context.Context, order model.PaymentOrder) (*model.Settlement, bool, error)
	Quote(ctx context.Context, amount decimal.Decimal, offset float64) (*model.Quote, error)
}

// Handler реализует HTTP-обработчики API платёжного моста.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.Metrics
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, m *metrics.Metrics) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        m,
	}
}

type payRequest struct {
	Address   string          `json:"address"`
	RWAAmount json.RawMessage `json:"rwa_amount"`
	Offset    json.RawMessage `json:"offset"`
	Order     json.RawMessage `json:"order"`
}

type payResponse struct {
	Code int               `json:"code,omitempty"`
	Msg  string            `json:"msg,omitempty"`
	Data *model.Settlement `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type quoteResponse struct {
	RWAAmount      string `json:"rwa_amount"`
	TokenAmount    string `json:"token_amount"`
	TokenAmountWei string `json:"token_amount_wei"`
	Multiplier     int64  `json:"multiplier"`
	Rate           string `json:"rate,omitempty"`
}

// GetStatus возвращает сохранённый результат расчёта по идентификатору заказа.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("order"))
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing order"})
		return
	}

	settlement, err := h.service.GetSettlement(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, repository.ErrSettlementNotFound) {
			writeJSON(w, http.StatusNotFound, statusResponse{Status: "not_found"})
			return
		}
		h.logger.Error("get settlement error", zap.Error(err), zap.String("order", orderID))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}

	writeJSON(w, http.StatusOK, settlement)
}

// Pay принимает заказ на выплату и выполняет расчёт не более одного раза.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req payRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed body"})
		return
	}

	order, err := parsePayRequest(req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	settlement, duplicate, err := h.service.Pay(r.Context(), order)
	if err != nil {
		h.writePayError(w, err, order.OrderID)
		return
	}

	if duplicate {
		writeJSON(w, http.StatusOK, payResponse{Msg: "Duplicate request", Data: settlement})
		return
	}

	writeJSON(w, http.StatusOK, payResponse{Code: http.StatusOK, Data: settlement})
}

// Quote рассчитывает количество токенов для суммы заказа без выплаты.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	amount, err := validation.ParseAmount(queryValue(query.Get("rwa_amount")))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	offset := 0.0
	if raw := query.Get("offset"); raw != "" {
		offset, err = validation.ParseOffset(queryValue(raw))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
	}

	quote, err := h.service.Quote(r.Context(), amount, offset)
	if err != nil {
		h.logger.Error("quote error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: faultCode(err)})
		return
	}

	resp := quoteResponse{
		RWAAmount:      amount.String(),
		TokenAmount:    pricing.FormatTokenAmount(quote.TokenAmount),
		TokenAmountWei: quote.TokenAmount.String(),
		Multiplier:     quote.Multiplier,
	}
	if quote.Rate != nil {
		resp.Rate = quote.Rate.String()
	}

	writeJSON(w, http.StatusOK, resp)
}

func parsePayRequest(req payRequest) (model.PaymentOrder, error) {
	orderID, err := validation.ParseOrderID(req.Order)
	if err != nil {
		return model.PaymentOrder{}, err
	}
	address, err := validation.ParseAddress(req.Address)
	if err != nil {
		return model.PaymentOrder{}, err
	}
	amount, err := validation.ParseAmount(req.RWAAmount)
	if err != nil {
		return model.PaymentOrder{}, err
	}
	offset, err := validation.ParseOffset(req.Offset)
	if err != nil {
		return model.PaymentOrder{}, err
	}

	return model.PaymentOrder{
		OrderID:   orderID,
		Address:   address,
		RWAAmount: amount,
		Offset:    offset,
	}, nil
}

func (h *Handler) writePayError(w http.ResponseWriter, err error, orderID string) {
	if errors.Is(err, service.ErrSettlementInProgress) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "settlement_in_progress"})
		return
	}

	h.logger.Error("pay error", zap.Error(err), zap.String("order", orderID))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: faultCode(err)})
}

// faultCode скрывает детали ошибки от клиента: подробности попадают только в лог.
func faultCode(err error) string {
	switch {
	case errors.Is(err, service.ErrPricingFault):
		return "pricing_fault"
	case errors.Is(err, service.ErrChainFault):
		return "chain_fault"
	default:
		return "internal_error"
	}
}

// queryValue передаёт параметр строки запроса валидатору как JSON-строку.
func queryValue(v string) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

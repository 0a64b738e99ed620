// Package handler is the HTTP surface of the clearing engine: creation of the
// three clearing operations in every initiation mode, the three settlement
// verbs, rebase scheduling, and the query surface. All business rules live in
// the service; this layer only parses, delegates, and translates errors.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tranche/internal/clearing"
	"tranche/internal/hold"
	"tranche/internal/platform/metrics"
	"tranche/internal/platform/middleware"
	"tranche/internal/transport/http/shared"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// Service is the engine surface the handler delegates to.
type Service interface {
	CreateTransfer(ctx context.Context, caller domain.Address, req clearing.Request, amount uint64, to domain.Address) (uint64, error)
	CreateTransferFrom(ctx context.Context, caller domain.Address, req clearing.RequestFrom, amount uint64, to domain.Address) (uint64, error)
	OperatorCreateTransfer(ctx context.Context, operator domain.Address, req clearing.RequestFrom, amount uint64, to domain.Address) (uint64, error)
	ControllerCreateTransfer(ctx context.Context, controller domain.Address, req clearing.RequestFrom, amount uint64, to domain.Address) (uint64, error)

	CreateRedeem(ctx context.Context, caller domain.Address, req clearing.Request, amount uint64) (uint64, error)
	CreateRedeemFrom(ctx context.Context, caller domain.Address, req clearing.RequestFrom, amount uint64) (uint64, error)
	OperatorCreateRedeem(ctx context.Context, operator domain.Address, req clearing.RequestFrom, amount uint64) (uint64, error)
	ControllerCreateRedeem(ctx context.Context, controller domain.Address, req clearing.RequestFrom, amount uint64) (uint64, error)

	CreateHold(ctx context.Context, caller domain.Address, req clearing.Request, spec hold.Spec) (uint64, error)
	CreateHoldFrom(ctx context.Context, caller domain.Address, req clearing.RequestFrom, spec hold.Spec) (uint64, error)
	OperatorCreateHold(ctx context.Context, operator domain.Address, req clearing.RequestFrom, spec hold.Spec) (uint64, error)

	Approve(ctx context.Context, caller domain.Address, id clearing.Identifier) error
	Cancel(ctx context.Context, caller domain.Address, id clearing.Identifier) error
	Reclaim(ctx context.Context, caller domain.Address, id clearing.Identifier) error

	ScheduleAdjustment(ctx context.Context, caller domain.Address, factor uint64, decimals uint8, executeAt time.Time) error
	Multiplier(ctx context.Context) uint64

	ClearedAmountFor(ctx context.Context, account domain.Address) (uint64, error)
	ClearedAmountForByPartition(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error)
	ClearingCountFor(ctx context.Context, partition domain.PartitionID, account domain.Address, operation clearing.OperationType) (uint64, error)
	ClearingsIDFor(ctx context.Context, partition domain.PartitionID, account domain.Address, operation clearing.OperationType, offset, limit uint64) ([]uint64, error)
	ClearingRecordFor(ctx context.Context, id clearing.Identifier) (*clearing.Record, error)
	ThirdPartyOf(ctx context.Context, id clearing.Identifier) (clearing.ThirdPartyType, domain.Address, error)
	HeldAmountFor(ctx context.Context, account domain.Address) (uint64, error)
	HeldAmountForByPartition(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error)
	BalanceOf(ctx context.Context, partition domain.PartitionID, account domain.Address) (uint64, error)
}

// Handler handles the clearing endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	metrics      *metrics.Metrics
	jwtValidator middleware.TokenValidator
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics, jwtValidator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the clearing routes. Every route requires a bearer token;
// the token subject is the acting address handed to the engine.
func (h *Handler) Register(r chi.Router) {
	cr := chi.NewRouter()
	cr.Use(middleware.Recovery(h.logger))
	cr.Use(middleware.RequestID)
	cr.Use(middleware.Logger(h.logger))
	cr.Use(h.observeLatency)
	cr.Use(middleware.ContentTypeJSON)
	cr.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	cr.Post("/clearing/transfer", h.handleCreateTransfer)
	cr.Post("/clearing/transfer/from", h.handleCreateTransferFrom)
	cr.Post("/clearing/transfer/operator", h.handleOperatorCreateTransfer)
	cr.Post("/clearing/transfer/controller", h.handleControllerCreateTransfer)
	cr.Post("/clearing/redeem", h.handleCreateRedeem)
	cr.Post("/clearing/redeem/from", h.handleCreateRedeemFrom)
	cr.Post("/clearing/redeem/operator", h.handleOperatorCreateRedeem)
	cr.Post("/clearing/redeem/controller", h.handleControllerCreateRedeem)
	cr.Post("/clearing/hold", h.handleCreateHold)
	cr.Post("/clearing/hold/from", h.handleCreateHoldFrom)
	cr.Post("/clearing/hold/operator", h.handleOperatorCreateHold)

	cr.Post("/clearing/approve", h.handleApprove)
	cr.Post("/clearing/cancel", h.handleCancel)
	cr.Post("/clearing/reclaim", h.handleReclaim)

	cr.Post("/rebase/adjustments", h.handleScheduleAdjustment)
	cr.Get("/rebase", h.handleMultiplier)

	cr.Get("/accounts/{address}/balance", h.handleBalance)
	cr.Get("/accounts/{address}/cleared", h.handleClearedAmount)
	cr.Get("/accounts/{address}/held", h.handleHeldAmount)
	cr.Get("/clearing/{partition}/{holder}/{operation}", h.handleClearingIDs)
	cr.Get("/clearing/{partition}/{holder}/{operation}/count", h.handleClearingCount)
	cr.Get("/clearing/{partition}/{holder}/{operation}/{id}", h.handleClearingRecord)
	cr.Get("/clearing/{partition}/{holder}/{operation}/{id}/third-party", h.handleThirdParty)

	r.Mount("/", cr)
}

// observeLatency records the request duration in milliseconds.
func (h *Handler) observeLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.metrics.RequestLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}

// createRequest is the JSON body shared by every creation endpoint. From and
// operator_data matter only on the delegated variants; hold fields only on
// the hold endpoints.
type createRequest struct {
	Partition    string `json:"partition"`
	ExpirationAt int64  `json:"expiration_at"`
	Amount       uint64 `json:"amount"`
	To           string `json:"to,omitempty"`
	From         string `json:"from,omitempty"`
	Data         []byte `json:"data,omitempty"`
	OperatorData []byte `json:"operator_data,omitempty"`

	HoldExpirationAt int64  `json:"hold_expiration_at,omitempty"`
	HoldEscrow       string `json:"hold_escrow,omitempty"`
	HoldTo           string `json:"hold_to,omitempty"`
	HoldData         []byte `json:"hold_data,omitempty"`
}

type createResponse struct {
	ClearingID uint64 `json:"clearing_id"`
}

type identifierRequest struct {
	Partition   string `json:"partition"`
	TokenHolder string `json:"token_holder"`
	Operation   string `json:"operation"`
	ClearingID  uint64 `json:"clearing_id"`
}

type amountResponse struct {
	Amount uint64 `json:"amount"`
}

func (h *Handler) decodeCreate(w http.ResponseWriter, r *http.Request) (createRequest, clearing.Request, bool) {
	var body createRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.WarnContext(r.Context(), "invalid create request",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return createRequest{}, clearing.Request{}, false
	}
	partition, err := domain.ParsePartitionID(body.Partition)
	if err != nil {
		shared.WriteError(w, err)
		return createRequest{}, clearing.Request{}, false
	}
	return body, clearing.Request{
		Partition:    partition,
		ExpirationAt: time.Unix(body.ExpirationAt, 0).UTC(),
		Data:         body.Data,
	}, true
}

func (h *Handler) decodeCreateFrom(w http.ResponseWriter, r *http.Request) (createRequest, clearing.RequestFrom, bool) {
	body, req, ok := h.decodeCreate(w, r)
	if !ok {
		return createRequest{}, clearing.RequestFrom{}, false
	}
	from, err := domain.ParseAddress(body.From)
	if err != nil {
		shared.WriteError(w, err)
		return createRequest{}, clearing.RequestFrom{}, false
	}
	return body, clearing.RequestFrom{
		Request:      req,
		From:         from,
		OperatorData: body.OperatorData,
	}, true
}

func (h *Handler) holdSpec(w http.ResponseWriter, body createRequest) (hold.Spec, bool) {
	escrow, err := domain.ParseAddress(body.HoldEscrow)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid hold escrow address"))
		return hold.Spec{}, false
	}
	spec := hold.Spec{
		Amount:       body.Amount,
		ExpirationAt: time.Unix(body.HoldExpirationAt, 0).UTC(),
		Escrow:       escrow,
		Data:         body.HoldData,
	}
	if body.HoldTo != "" {
		to, err := domain.ParseAddress(body.HoldTo)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid hold destination address"))
			return hold.Spec{}, false
		}
		spec.To = to
	}
	return spec, true
}

func (h *Handler) writeCreated(w http.ResponseWriter, r *http.Request, operation clearing.OperationType, id uint64, err error) {
	if err != nil {
		h.logger.WarnContext(r.Context(), "clearing creation rejected",
			"request_id", middleware.GetRequestID(r.Context()),
			"operation", operation.String(),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	h.metrics.ClearingsCreated.WithLabelValues(operation.String()).Inc()
	shared.WriteJSON(w, http.StatusCreated, createResponse{ClearingID: id})
}

func (h *Handler) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	to, err := domain.ParseAddress(body.To)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := h.service.CreateTransfer(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount, to)
	h.writeCreated(w, r, clearing.OperationTransfer, id, err)
}

func (h *Handler) handleCreateTransferFrom(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	to, err := domain.ParseAddress(body.To)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := h.service.CreateTransferFrom(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount, to)
	h.writeCreated(w, r, clearing.OperationTransfer, id, err)
}

func (h *Handler) handleOperatorCreateTransfer(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	to, err := domain.ParseAddress(body.To)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := h.service.OperatorCreateTransfer(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount, to)
	h.writeCreated(w, r, clearing.OperationTransfer, id, err)
}

func (h *Handler) handleControllerCreateTransfer(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	to, err := domain.ParseAddress(body.To)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := h.service.ControllerCreateTransfer(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount, to)
	h.writeCreated(w, r, clearing.OperationTransfer, id, err)
}

func (h *Handler) handleCreateRedeem(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	id, err := h.service.CreateRedeem(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount)
	h.writeCreated(w, r, clearing.OperationRedeem, id, err)
}

func (h *Handler) handleCreateRedeemFrom(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	id, err := h.service.CreateRedeemFrom(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount)
	h.writeCreated(w, r, clearing.OperationRedeem, id, err)
}

func (h *Handler) handleOperatorCreateRedeem(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	id, err := h.service.OperatorCreateRedeem(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount)
	h.writeCreated(w, r, clearing.OperationRedeem, id, err)
}

func (h *Handler) handleControllerCreateRedeem(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	id, err := h.service.ControllerCreateRedeem(r.Context(), middleware.GetCaller(r.Context()), req, body.Amount)
	h.writeCreated(w, r, clearing.OperationRedeem, id, err)
}

func (h *Handler) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreate(w, r)
	if !ok {
		return
	}
	spec, ok := h.holdSpec(w, body)
	if !ok {
		return
	}
	id, err := h.service.CreateHold(r.Context(), middleware.GetCaller(r.Context()), req, spec)
	h.writeCreated(w, r, clearing.OperationHoldCreation, id, err)
}

func (h *Handler) handleCreateHoldFrom(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	spec, ok := h.holdSpec(w, body)
	if !ok {
		return
	}
	id, err := h.service.CreateHoldFrom(r.Context(), middleware.GetCaller(r.Context()), req, spec)
	h.writeCreated(w, r, clearing.OperationHoldCreation, id, err)
}

func (h *Handler) handleOperatorCreateHold(w http.ResponseWriter, r *http.Request) {
	body, req, ok := h.decodeCreateFrom(w, r)
	if !ok {
		return
	}
	spec, ok := h.holdSpec(w, body)
	if !ok {
		return
	}
	id, err := h.service.OperatorCreateHold(r.Context(), middleware.GetCaller(r.Context()), req, spec)
	h.writeCreated(w, r, clearing.OperationHoldCreation, id, err)
}

func (h *Handler) decodeIdentifier(w http.ResponseWriter, r *http.Request) (clearing.Identifier, bool) {
	var body identifierRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return clearing.Identifier{}, false
	}
	partition, err := domain.ParsePartitionID(body.Partition)
	if err != nil {
		shared.WriteError(w, err)
		return clearing.Identifier{}, false
	}
	holder, err := domain.ParseAddress(body.TokenHolder)
	if err != nil {
		shared.WriteError(w, err)
		return clearing.Identifier{}, false
	}
	operation, err := clearing.ParseOperationType(body.Operation)
	if err != nil {
		shared.WriteError(w, err)
		return clearing.Identifier{}, false
	}
	return clearing.Identifier{
		Partition:   partition,
		TokenHolder: holder,
		Operation:   operation,
		ClearingID:  body.ClearingID,
	}, true
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, outcome string,
	settle func(ctx context.Context, caller domain.Address, id clearing.Identifier) error) {
	id, ok := h.decodeIdentifier(w, r)
	if !ok {
		return
	}
	if err := settle(r.Context(), middleware.GetCaller(r.Context()), id); err != nil {
		h.logger.WarnContext(r.Context(), "settlement rejected",
			"request_id", middleware.GetRequestID(r.Context()),
			"outcome", outcome,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	h.metrics.ClearingsSettled.WithLabelValues(outcome).Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "approved", h.service.Approve)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "cancelled", h.service.Cancel)
}

func (h *Handler) handleReclaim(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "reclaimed", h.service.Reclaim)
}

type scheduleAdjustmentRequest struct {
	Factor    uint64 `json:"factor"`
	Decimals  uint8  `json:"decimals"`
	ExecuteAt int64  `json:"execute_at"`
}

func (h *Handler) handleScheduleAdjustment(w http.ResponseWriter, r *http.Request) {
	var body scheduleAdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	err := h.service.ScheduleAdjustment(r.Context(), middleware.GetCaller(r.Context()),
		body.Factor, body.Decimals, time.Unix(body.ExecuteAt, 0).UTC())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMultiplier(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{
		"multiplier": h.service.Multiplier(r.Context()),
	})
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request, param string) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, param))
	if err != nil {
		shared.WriteError(w, err)
		return "", false
	}
	return addr, true
}

// queryPartition reads the optional ?partition= filter. Empty means "all".
func queryPartition(w http.ResponseWriter, r *http.Request) (domain.PartitionID, bool, bool) {
	raw := r.URL.Query().Get("partition")
	if raw == "" {
		return "", false, true
	}
	partition, err := domain.ParsePartitionID(raw)
	if err != nil {
		shared.WriteError(w, err)
		return "", false, false
	}
	return partition, true, true
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	partition, scoped, ok := queryPartition(w, r)
	if !ok {
		return
	}
	if !scoped {
		partition = domain.DefaultPartition
	}
	amount, err := h.service.BalanceOf(r.Context(), partition, account)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (h *Handler) handleClearedAmount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	partition, scoped, ok := queryPartition(w, r)
	if !ok {
		return
	}
	var amount uint64
	var err error
	if scoped {
		amount, err = h.service.ClearedAmountForByPartition(r.Context(), partition, account)
	} else {
		amount, err = h.service.ClearedAmountFor(r.Context(), account)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

func (h *Handler) handleHeldAmount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.pathAddress(w, r, "address")
	if !ok {
		return
	}
	partition, scoped, ok := queryPartition(w, r)
	if !ok {
		return
	}
	var amount uint64
	var err error
	if scoped {
		amount, err = h.service.HeldAmountForByPartition(r.Context(), partition, account)
	} else {
		amount, err = h.service.HeldAmountFor(r.Context(), account)
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, amountResponse{Amount: amount})
}

// clearingKey parses the {partition}/{holder}/{operation} path triple.
func (h *Handler) clearingKey(w http.ResponseWriter, r *http.Request) (domain.PartitionID, domain.Address, clearing.OperationType, bool) {
	partition, err := domain.ParsePartitionID(chi.URLParam(r, "partition"))
	if err != nil {
		shared.WriteError(w, err)
		return "", "", "", false
	}
	holder, err := domain.ParseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		shared.WriteError(w, err)
		return "", "", "", false
	}
	operation, err := clearing.ParseOperationType(chi.URLParam(r, "operation"))
	if err != nil {
		shared.WriteError(w, err)
		return "", "", "", false
	}
	return partition, holder, operation, true
}

func (h *Handler) handleClearingCount(w http.ResponseWriter, r *http.Request) {
	partition, holder, operation, ok := h.clearingKey(w, r)
	if !ok {
		return
	}
	count, err := h.service.ClearingCountFor(r.Context(), partition, holder, operation)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

func (h *Handler) handleClearingIDs(w http.ResponseWriter, r *http.Request) {
	partition, holder, operation, ok := h.clearingKey(w, r)
	if !ok {
		return
	}
	offset, err := queryUint(r, "offset")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid offset"))
		return
	}
	limit, err := queryUint(r, "limit")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
		return
	}
	ids, err := h.service.ClearingsIDFor(r.Context(), partition, holder, operation, offset, limit)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string][]uint64{"clearing_ids": ids})
}

type recordResponse struct {
	Partition      string `json:"partition"`
	TokenHolder    string `json:"token_holder"`
	Operation      string `json:"operation"`
	ClearingID     uint64 `json:"clearing_id"`
	Amount         uint64 `json:"amount"`
	ExpirationAt   int64  `json:"expiration_at"`
	Destination    string `json:"destination,omitempty"`
	Data           []byte `json:"data,omitempty"`
	OperatorData   []byte `json:"operator_data,omitempty"`
	ThirdPartyType string `json:"third_party_type"`
	ThirdParty     string `json:"third_party,omitempty"`
	State          string `json:"state"`
	CreatedAt      int64  `json:"created_at"`
	SettledAt      int64  `json:"settled_at,omitempty"`
}

func (h *Handler) handleClearingRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathIdentifier(w, r)
	if !ok {
		return
	}
	rec, err := h.service.ClearingRecordFor(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	resp := recordResponse{
		Partition:      rec.Partition.String(),
		TokenHolder:    rec.TokenHolder.String(),
		Operation:      rec.Operation.String(),
		ClearingID:     rec.ClearingID,
		Amount:         rec.Amount,
		ExpirationAt:   rec.ExpirationAt.Unix(),
		Destination:    rec.Destination.String(),
		Data:           rec.Data,
		OperatorData:   rec.OperatorData,
		ThirdPartyType: string(rec.ThirdPartyType),
		ThirdParty:     rec.ThirdParty.String(),
		State:          string(rec.State),
		CreatedAt:      rec.CreatedAt.Unix(),
	}
	if !rec.SettledAt.IsZero() {
		resp.SettledAt = rec.SettledAt.Unix()
	}
	shared.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleThirdParty(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathIdentifier(w, r)
	if !ok {
		return
	}
	tpType, tp, err := h.service.ThirdPartyOf(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"third_party_type": string(tpType),
		"third_party":      tp.String(),
	})
}

func (h *Handler) pathIdentifier(w http.ResponseWriter, r *http.Request) (clearing.Identifier, bool) {
	partition, holder, operation, ok := h.clearingKey(w, r)
	if !ok {
		return clearing.Identifier{}, false
	}
	clearingID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid clearing id"))
		return clearing.Identifier{}, false
	}
	return clearing.Identifier{
		Partition:   partition,
		TokenHolder: holder,
		Operation:   operation,
		ClearingID:  clearingID,
	}, true
}

func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

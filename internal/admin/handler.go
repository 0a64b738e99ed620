// Package admin is the administration and account-management surface: role
// grants, the pause switch, the clearing activation toggle, compliance status,
// issuance, operator authorizations, allowances, hold release, and the event
// history. The clearing state machine itself lives under the clearing handler.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tranche/internal/accesscontrol"
	"tranche/internal/events"
	"tranche/internal/hold"
	"tranche/internal/platform/clock"
	"tranche/internal/platform/middleware"
	"tranche/internal/rebase"
	"tranche/internal/transport/http/shared"
	"tranche/pkg/domain"
	dErrors "tranche/pkg/domain-errors"
)

// AccessControl is the role, operator, and pause registry the admin surface
// mutates.
type AccessControl interface {
	GrantRole(ctx context.Context, account domain.Address, role accesscontrol.Role) error
	RevokeRole(ctx context.Context, account domain.Address, role accesscontrol.Role) error
	HasRole(ctx context.Context, account domain.Address, role accesscontrol.Role) (bool, error)
	AuthorizeOperator(ctx context.Context, owner, operator domain.Address) error
	RevokeOperator(ctx context.Context, owner, operator domain.Address) error
	AuthorizeOperatorByPartition(ctx context.Context, owner, operator domain.Address, partition domain.PartitionID) error
	RevokeOperatorByPartition(ctx context.Context, owner, operator domain.Address, partition domain.PartitionID) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	IsPaused(ctx context.Context) (bool, error)
}

// ComplianceRegistry is the mutable holder-status registry.
type ComplianceRegistry interface {
	SetEligible(ctx context.Context, account domain.Address, eligible bool) error
	SetBlocked(ctx context.Context, account domain.Address, blocked bool) error
}

// AllowanceLedger is the owner-facing allowance surface.
type AllowanceLedger interface {
	Approve(ctx context.Context, owner, spender domain.Address, amount uint64) error
	Increase(ctx context.Context, owner, spender domain.Address, amount uint64) error
	Decrease(ctx context.Context, owner, spender domain.Address, amount uint64) error
	AllowanceOf(ctx context.Context, owner, spender domain.Address) (uint64, error)
}

// Issuer mints new units.
type Issuer interface {
	Issue(ctx context.Context, caller domain.Address, partition domain.PartitionID, account domain.Address, amount uint64) error
}

// ClearingToggle flips the clearing subsystem on and off.
type ClearingToggle interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	IsActive(ctx context.Context) bool
}

// HoldService is the post-approval hold surface.
type HoldService interface {
	Release(ctx context.Context, caller domain.Address, partition domain.PartitionID, holder domain.Address, id uint64) error
	Get(ctx context.Context, partition domain.PartitionID, holder domain.Address, id uint64) (*hold.Hold, error)
	Count(ctx context.Context, partition domain.PartitionID, holder domain.Address) (uint64, error)
}

// EventHistory reads back emitted events.
type EventHistory interface {
	List(ctx context.Context) ([]events.Event, error)
	ListByHolder(ctx context.Context, holder string) ([]events.Event, error)
}

type Handler struct {
	logger       *slog.Logger
	access       AccessControl
	compliance   ComplianceRegistry
	allowances   AllowanceLedger
	issuer       Issuer
	toggle       ClearingToggle
	holds        HoldService
	history      EventHistory
	rebase       *rebase.Register
	clock        clock.Clock
	jwtValidator middleware.TokenValidator
}

type Config struct {
	Logger       *slog.Logger
	Access       AccessControl
	Compliance   ComplianceRegistry
	Allowances   AllowanceLedger
	Issuer       Issuer
	Toggle       ClearingToggle
	Holds        HoldService
	History      EventHistory
	Rebase       *rebase.Register
	Clock        clock.Clock
	JWTValidator middleware.TokenValidator
}

func New(cfg Config) *Handler {
	return &Handler{
		logger:       cfg.Logger,
		access:       cfg.Access,
		compliance:   cfg.Compliance,
		allowances:   cfg.Allowances,
		issuer:       cfg.Issuer,
		toggle:       cfg.Toggle,
		holds:        cfg.Holds,
		history:      cfg.History,
		rebase:       cfg.Rebase,
		clock:        cfg.Clock,
		jwtValidator: cfg.JWTValidator,
	}
}

// Register mounts the admin and account-management routes.
func (h *Handler) Register(r chi.Router) {
	ar := chi.NewRouter()
	ar.Use(middleware.Recovery(h.logger))
	ar.Use(middleware.RequestID)
	ar.Use(middleware.Logger(h.logger))
	ar.Use(middleware.ContentTypeJSON)
	ar.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	ar.Post("/admin/roles/grant", h.handleGrantRole)
	ar.Post("/admin/roles/revoke", h.handleRevokeRole)
	ar.Post("/admin/pause", h.handlePause)
	ar.Post("/admin/unpause", h.handleUnpause)
	ar.Get("/admin/paused", h.handlePaused)
	ar.Post("/admin/clearing/activate", h.handleActivate)
	ar.Post("/admin/clearing/deactivate", h.handleDeactivate)
	ar.Get("/admin/clearing/active", h.handleActive)
	ar.Post("/admin/compliance/eligibility", h.handleSetEligible)
	ar.Post("/admin/compliance/denylist", h.handleSetBlocked)
	ar.Post("/admin/issue", h.handleIssue)

	ar.Post("/operators/authorize", h.handleAuthorizeOperator)
	ar.Post("/operators/revoke", h.handleRevokeOperator)
	ar.Post("/allowances/approve", h.handleApproveAllowance)
	ar.Post("/allowances/increase", h.handleIncreaseAllowance)
	ar.Post("/allowances/decrease", h.handleDecreaseAllowance)
	ar.Get("/allowances/{owner}/{spender}", h.handleAllowanceOf)

	ar.Post("/holds/release", h.handleReleaseHold)
	ar.Get("/holds/{partition}/{holder}/count", h.handleHoldCount)
	ar.Get("/holds/{partition}/{holder}/{id}", h.handleGetHold)

	ar.Get("/events", h.handleEvents)

	r.Mount("/", ar)
}

type roleRequest struct {
	Account string `json:"account"`
	Role    string `json:"role"`
}

var knownRoles = map[accesscontrol.Role]bool{
	accesscontrol.RoleClearingValidator: true,
	accesscontrol.RoleIssuer:            true,
	accesscontrol.RolePauser:            true,
	accesscontrol.RoleController:        true,
	accesscontrol.RoleCorporateActions:  true,
}

func (h *Handler) decodeRole(w http.ResponseWriter, r *http.Request) (domain.Address, accesscontrol.Role, bool) {
	var body roleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return "", "", false
	}
	account, err := domain.ParseAddress(body.Account)
	if err != nil {
		shared.WriteError(w, err)
		return "", "", false
	}
	role := accesscontrol.Role(body.Role)
	if !knownRoles[role] {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown role"))
		return "", "", false
	}
	return account, role, true
}

func (h *Handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	account, role, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	if err := h.access.GrantRole(r.Context(), account, role); err != nil {
		shared.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "role granted",
		"request_id", middleware.GetRequestID(r.Context()),
		"account", account.String(),
		"role", string(role),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	account, role, ok := h.decodeRole(w, r)
	if !ok {
		return
	}
	if err := h.access.RevokeRole(r.Context(), account, role); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requirePauser gates the pause and activation switches.
func (h *Handler) requirePauser(w http.ResponseWriter, r *http.Request) bool {
	caller := middleware.GetCaller(r.Context())
	ok, err := h.access.HasRole(r.Context(), caller, accesscontrol.RolePauser)
	if err != nil {
		shared.WriteError(w, dErrors.Wrap(dErrors.CodeInternal, "role lookup failed", err))
		return false
	}
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeAccountHasNoRole, "caller lacks the pauser role"))
		return false
	}
	return true
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if !h.requirePauser(w, r) {
		return
	}
	if err := h.access.Pause(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	h.logger.WarnContext(r.Context(), "system paused",
		"request_id", middleware.GetRequestID(r.Context()),
		"caller", middleware.GetCaller(r.Context()).String(),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if !h.requirePauser(w, r) {
		return
	}
	if err := h.access.Unpause(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePaused(w http.ResponseWriter, r *http.Request) {
	paused, err := h.access.IsPaused(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	if !h.requirePauser(w, r) {
		return
	}
	if err := h.toggle.Activate(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	if !h.requirePauser(w, r) {
		return
	}
	if err := h.toggle.Deactivate(r.Context()); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]bool{"active": h.toggle.IsActive(r.Context())})
}

type complianceRequest struct {
	Account string `json:"account"`
	Value   bool   `json:"value"`
}

func (h *Handler) setCompliance(w http.ResponseWriter, r *http.Request,
	set func(ctx context.Context, account domain.Address, value bool) error) {
	var body complianceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	account, err := domain.ParseAddress(body.Account)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := set(r.Context(), account, body.Value); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetEligible(w http.ResponseWriter, r *http.Request) {
	h.setCompliance(w, r, h.compliance.SetEligible)
}

func (h *Handler) handleSetBlocked(w http.ResponseWriter, r *http.Request) {
	h.setCompliance(w, r, h.compliance.SetBlocked)
}

type issueRequest struct {
	Partition string `json:"partition"`
	Account   string `json:"account"`
	Amount    uint64 `json:"amount"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var body issueRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	partition, err := domain.ParsePartitionID(body.Partition)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	account, err := domain.ParseAddress(body.Account)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	caller := middleware.GetCaller(r.Context())
	if err := h.issuer.Issue(r.Context(), caller, partition, account, body.Amount); err != nil {
		shared.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "units issued",
		"request_id", middleware.GetRequestID(r.Context()),
		"partition", partition.String(),
		"account", account.String(),
		"amount", body.Amount,
	)
	w.WriteHeader(http.StatusNoContent)
}

// operatorRequest acts on the caller's own account: the authenticated address
// is always the owner side of the authorization.
type operatorRequest struct {
	Operator  string `json:"operator"`
	Partition string `json:"partition,omitempty"`
}

func (h *Handler) operator(w http.ResponseWriter, r *http.Request,
	global func(ctx context.Context, owner, operator domain.Address) error,
	scoped func(ctx context.Context, owner, operator domain.Address, partition domain.PartitionID) error) {
	var body operatorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	operator, err := domain.ParseAddress(body.Operator)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	owner := middleware.GetCaller(r.Context())
	if body.Partition == "" {
		err = global(r.Context(), owner, operator)
	} else {
		var partition domain.PartitionID
		partition, err = domain.ParsePartitionID(body.Partition)
		if err == nil {
			err = scoped(r.Context(), owner, operator, partition)
		}
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAuthorizeOperator(w http.ResponseWriter, r *http.Request) {
	h.operator(w, r, h.access.AuthorizeOperator, h.access.AuthorizeOperatorByPartition)
}

func (h *Handler) handleRevokeOperator(w http.ResponseWriter, r *http.Request) {
	h.operator(w, r, h.access.RevokeOperator, h.access.RevokeOperatorByPartition)
}

type allowanceRequest struct {
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// allowance applies an owner-scoped allowance mutation. Amounts cross the
// boundary in observed units and are stored in base units, like every other
// externally supplied amount.
func (h *Handler) allowance(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, owner, spender domain.Address, amount uint64) error) {
	var body allowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	spender, err := domain.ParseAddress(body.Spender)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	owner := middleware.GetCaller(r.Context())
	baseAmount := h.rebase.ToBase(body.Amount, h.clock.Now())
	if err := apply(r.Context(), owner, spender, baseAmount); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleApproveAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowance(w, r, h.allowances.Approve)
}

func (h *Handler) handleIncreaseAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowance(w, r, h.allowances.Increase)
}

func (h *Handler) handleDecreaseAllowance(w http.ResponseWriter, r *http.Request) {
	h.allowance(w, r, h.allowances.Decrease)
}

func (h *Handler) handleAllowanceOf(w http.ResponseWriter, r *http.Request) {
	owner, err := domain.ParseAddress(chi.URLParam(r, "owner"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	spender, err := domain.ParseAddress(chi.URLParam(r, "spender"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := h.allowances.AllowanceOf(r.Context(), owner, spender)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	observed := h.rebase.ToObserved(amount, h.clock.Now())
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{"allowance": observed})
}

type releaseHoldRequest struct {
	Partition   string `json:"partition"`
	TokenHolder string `json:"token_holder"`
	HoldID      uint64 `json:"hold_id"`
}

func (h *Handler) handleReleaseHold(w http.ResponseWriter, r *http.Request) {
	var body releaseHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	partition, err := domain.ParsePartitionID(body.Partition)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	holder, err := domain.ParseAddress(body.TokenHolder)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	caller := middleware.GetCaller(r.Context())
	if err := h.holds.Release(r.Context(), caller, partition, holder, body.HoldID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) holdKey(w http.ResponseWriter, r *http.Request) (domain.PartitionID, domain.Address, bool) {
	partition, err := domain.ParsePartitionID(chi.URLParam(r, "partition"))
	if err != nil {
		shared.WriteError(w, err)
		return "", "", false
	}
	holder, err := domain.ParseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		shared.WriteError(w, err)
		return "", "", false
	}
	return partition, holder, true
}

func (h *Handler) handleHoldCount(w http.ResponseWriter, r *http.Request) {
	partition, holder, ok := h.holdKey(w, r)
	if !ok {
		return
	}
	count, err := h.holds.Count(r.Context(), partition, holder)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]uint64{"count": count})
}

type holdResponse struct {
	ID           uint64 `json:"id"`
	Partition    string `json:"partition"`
	TokenHolder  string `json:"token_holder"`
	Amount       uint64 `json:"amount"`
	ExpirationAt int64  `json:"expiration_at"`
	Escrow       string `json:"escrow"`
	To           string `json:"to,omitempty"`
	Status       string `json:"status"`
	CreatedAt    int64  `json:"created_at"`
}

func (h *Handler) handleGetHold(w http.ResponseWriter, r *http.Request) {
	partition, holder, ok := h.holdKey(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid hold id"))
		return
	}
	hd, err := h.holds.Get(r.Context(), partition, holder, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, holdResponse{
		ID:           hd.ID,
		Partition:    hd.Partition.String(),
		TokenHolder:  hd.TokenHolder.String(),
		Amount:       hd.Amount,
		ExpirationAt: hd.ExpirationAt.Unix(),
		Escrow:       hd.Escrow.String(),
		To:           hd.To.String(),
		Status:       string(hd.Status),
		CreatedAt:    hd.CreatedAt.Unix(),
	})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	var (
		list []events.Event
		err  error
	)
	if holder := r.URL.Query().Get("holder"); holder != "" {
		list, err = h.history.ListByHolder(r.Context(), holder)
	} else {
		list, err = h.history.List(r.Context())
	}
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": list, "total": len(list)})
}

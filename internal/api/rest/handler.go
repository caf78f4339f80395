package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chainsave/circle-engine/internal/api/middleware"
	"github.com/chainsave/circle-engine/internal/domain"
	"github.com/chainsave/circle-engine/internal/engine"
	"github.com/chainsave/circle-engine/internal/logger"
	"github.com/chainsave/circle-engine/internal/messaging"
	"github.com/chainsave/circle-engine/internal/query"
	"github.com/chainsave/circle-engine/internal/store"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// CreateCircle registers a new circle
	// POST /api/v1/circles
	CreateCircle(c *gin.Context)

	// UpdateCircle changes descriptive fields before the circle starts
	// PATCH /api/v1/circles/:id
	UpdateCircle(c *gin.Context)

	// ListCircles retrieves circles with optional filters
	// GET /api/v1/circles?after_id=<id>&limit=<limit>&status=<status>&creator=<address>
	ListCircles(c *gin.Context)

	// GetCircle retrieves a single circle
	// GET /api/v1/circles/:id
	GetCircle(c *gin.Context)

	// GetMembers retrieves the member roster
	// GET /api/v1/circles/:id/members
	GetMembers(c *gin.Context)

	// GetCurrentCycle retrieves deposit progress for the running cycle
	// GET /api/v1/circles/:id/cycle
	GetCurrentCycle(c *gin.Context)

	// ListDeposits retrieves deposits for one cycle
	// GET /api/v1/circles/:id/deposits?cycle=<cycle>
	ListDeposits(c *gin.Context)

	// ListMemberDeposits retrieves one member's deposits across cycles
	// GET /api/v1/circles/:id/members/:address/deposits
	ListMemberDeposits(c *gin.Context)

	// GetMemberBalance retrieves a member's net position
	// GET /api/v1/circles/:id/members/:address/balance
	GetMemberBalance(c *gin.Context)

	// GetMemberStats retrieves a member's payment record
	// GET /api/v1/circles/:id/members/:address/stats
	GetMemberStats(c *gin.Context)

	// ListPayouts retrieves payout history
	// GET /api/v1/circles/:id/payouts
	ListPayouts(c *gin.Context)

	// ListPenalties retrieves penalties, optionally for one member
	// GET /api/v1/circles/:id/penalties?member=<address>
	ListPenalties(c *gin.Context)

	// ListRefunds retrieves refunds issued by the circle
	// GET /api/v1/circles/:id/refunds
	ListRefunds(c *gin.Context)

	// ListEvents retrieves audit events, most recent first
	// GET /api/v1/circles/:id/events?limit=<limit>
	ListEvents(c *gin.Context)

	// GetCircleStats retrieves aggregate escrow and rotation figures
	// GET /api/v1/circles/:id/stats
	GetCircleStats(c *gin.Context)

	// JoinCircle adds the caller to a circle
	// POST /api/v1/circles/:id/join
	JoinCircle(c *gin.Context)

	// InviteMember invites a prospective member
	// POST /api/v1/circles/:id/invite
	InviteMember(c *gin.Context)

	// ExitCircle removes the caller before the circle starts
	// POST /api/v1/circles/:id/exit
	ExitCircle(c *gin.Context)

	// StartCircle begins the payout rotation
	// POST /api/v1/circles/:id/start
	StartCircle(c *gin.Context)

	// PauseCircle suspends a running circle
	// POST /api/v1/circles/:id/pause
	PauseCircle(c *gin.Context)

	// UnpauseCircle resumes a paused circle
	// POST /api/v1/circles/:id/unpause
	UnpauseCircle(c *gin.Context)

	// EmergencyStop halts a circle and locks withdrawals
	// POST /api/v1/circles/:id/emergency-stop
	EmergencyStop(c *gin.Context)

	// CancelCircle terminates a circle and refunds join deposits
	// POST /api/v1/circles/:id/cancel
	CancelCircle(c *gin.Context)

	// LockJoinDeposit escrows the caller's refundable join deposit
	// POST /api/v1/circles/:id/lock
	LockJoinDeposit(c *gin.Context)

	// DepositContribution records the caller's contribution for the cycle
	// POST /api/v1/circles/:id/deposits
	DepositContribution(c *gin.Context)

	// ProcessPayout settles the current cycle
	// POST /api/v1/circles/:id/payout
	ProcessPayout(c *gin.Context)

	// BlockMember excludes a member from future cycles
	// POST /api/v1/circles/:id/block
	BlockMember(c *gin.Context)

	// DistributeBlockedFunds releases blocked members' locks to depositors
	// POST /api/v1/circles/:id/distribute-blocked
	DistributeBlockedFunds(c *gin.Context)

	// AddPrivateMember enrolls an address directly into a private circle
	// POST /api/v1/circles/:id/private-members
	AddPrivateMember(c *gin.Context)

	// UpdatePseudonym sets a member's display name in the circle
	// PUT /api/v1/circles/:id/pseudonym
	UpdatePseudonym(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	engine    *engine.Engine
	query     *query.Executor
	publisher messaging.Publisher
}

// NewHandler creates a new REST API handler. The publisher may be nil when
// event publishing is disabled.
func NewHandler(eng *engine.Engine, q *query.Executor, pub messaging.Publisher) Handler {
	return &handler{
		engine:    eng,
		query:     q,
		publisher: pub,
	}
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// CreateCircle registers a new circle
func (h *handler) CreateCircle(c *gin.Context) {
	var req CreateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}

	params, err := req.toParams()
	if err != nil {
		respondBadRequest(c, "Invalid address in parameters", err.Error())
		return
	}

	result, err := h.engine.CreateCircle(c.Request.Context(), caller, params, req.Payment.toPayment())
	h.respondResult(c, caller, result, err)
}

// UpdateCircle changes descriptive fields before the circle starts
func (h *handler) UpdateCircle(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var req UpdateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}

	result, err := h.engine.UpdateCircle(c.Request.Context(), caller, circleID, req.Name, req.Description, req.Image)
	h.respondResult(c, caller, result, err)
}

// ListCircles retrieves circles with optional filters
func (h *handler) ListCircles(c *gin.Context) {
	filter := store.CircleFilter{}

	if after := c.Query("after_id"); after != "" {
		id, err := strconv.ParseUint(after, 10, 64)
		if err != nil {
			respondBadRequest(c, "Invalid after_id")
			return
		}
		filter.AfterID = id
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondBadRequest(c, "Invalid limit")
			return
		}
		filter.Limit = n
	}
	if status := c.Query("status"); status != "" {
		s := domain.CircleStatus(status)
		if !domain.IsValidStatus(s) {
			respondBadRequest(c, "Invalid status")
			return
		}
		filter.Status = &s
	}
	if creator := c.Query("creator"); creator != "" {
		addr, err := domain.NormalizeAddress(creator)
		if err != nil {
			respondBadRequest(c, "Invalid creator address")
			return
		}
		filter.Creator = &addr
	}

	circles, err := h.query.ListCircles(c.Request.Context(), filter)
	if err != nil {
		respondInternalError(c, err, "Failed to list circles")
		return
	}

	c.JSON(http.StatusOK, gin.H{"circles": circles})
}

// GetCircle retrieves a single circle
func (h *handler) GetCircle(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	circle, err := h.query.GetCircle(c.Request.Context(), circleID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, circle)
}

// GetMembers retrieves the member roster
func (h *handler) GetMembers(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	members, err := h.query.GetMembers(c.Request.Context(), circleID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": members})
}

// GetCurrentCycle retrieves deposit progress for the running cycle
func (h *handler) GetCurrentCycle(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	cycle, err := h.query.GetCurrentCycle(c.Request.Context(), circleID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, cycle)
}

// ListDeposits retrieves deposits for one cycle
func (h *handler) ListDeposits(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	cycleRaw := c.Query("cycle")
	if cycleRaw == "" {
		respondBadRequest(c, "cycle query parameter is required")
		return
	}
	cycle, err := strconv.ParseUint(cycleRaw, 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid cycle")
		return
	}

	deposits, err := h.query.ListCycleDeposits(c.Request.Context(), circleID, uint32(cycle))
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deposits": deposits})
}

// ListMemberDeposits retrieves one member's deposits across cycles
func (h *handler) ListMemberDeposits(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}
	member, ok := parseMemberAddress(c)
	if !ok {
		return
	}

	deposits, err := h.query.ListMemberDeposits(c.Request.Context(), circleID, member)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deposits": deposits})
}

// GetMemberBalance retrieves a member's net position
func (h *handler) GetMemberBalance(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}
	member, ok := parseMemberAddress(c)
	if !ok {
		return
	}

	balance, err := h.query.GetMemberBalance(c.Request.Context(), circleID, member)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// GetMemberStats retrieves a member's payment record
func (h *handler) GetMemberStats(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}
	member, ok := parseMemberAddress(c)
	if !ok {
		return
	}

	stats, err := h.query.GetMemberStats(c.Request.Context(), circleID, member)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListPayouts retrieves payout history
func (h *handler) ListPayouts(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	payouts, err := h.query.ListPayouts(c.Request.Context(), circleID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts})
}

// ListPenalties retrieves penalties, optionally for one member
func (h *handler) ListPenalties(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var member *domain.Address
	if raw := c.Query("member"); raw != "" {
		addr, err := domain.NormalizeAddress(raw)
		if err != nil {
			respondBadRequest(c, "Invalid member address")
			return
		}
		member = &addr
	}

	penalties, err := h.query.ListPenalties(c.Request.Context(), circleID, member)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"penalties": penalties})
}

// ListRefunds retrieves refunds issued by the circle
func (h *handler) ListRefunds(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	refunds, err := h.query.ListRefunds(c.Request.Context(), circleID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

// ListEvents retrieves audit events, most recent first
func (h *handler) ListEvents(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondBadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := h.query.ListEvents(c.Request.Context(), circleID, limit)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetCircleStats retrieves aggregate escrow and rotation figures
func (h *handler) GetCircleStats(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	stats, err := h.query.GetCircleStats(c.Request.Context(), circleID)
	if err != nil {
		h.respondQueryError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// JoinCircle adds the caller to a circle
func (h *handler) JoinCircle(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.JoinCircle(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// InviteMember invites a prospective member
func (h *handler) InviteMember(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}
	invitee, err := domain.NormalizeAddress(req.Invitee)
	if err != nil {
		respondBadRequest(c, "Invalid invitee address")
		return
	}

	result, err := h.engine.InviteMember(c.Request.Context(), caller, circleID, invitee)
	h.respondResult(c, caller, result, err)
}

// ExitCircle removes the caller before the circle starts
func (h *handler) ExitCircle(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.ExitCircle(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// StartCircle begins the payout rotation
func (h *handler) StartCircle(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.StartCircle(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// PauseCircle suspends a running circle
func (h *handler) PauseCircle(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.PauseCircle(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// UnpauseCircle resumes a paused circle
func (h *handler) UnpauseCircle(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.UnpauseCircle(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// EmergencyStop halts a circle and locks withdrawals
func (h *handler) EmergencyStop(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.EmergencyStop(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// CancelCircle terminates a circle and refunds join deposits
func (h *handler) CancelCircle(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.CancelCircle(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// LockJoinDeposit escrows the caller's refundable join deposit
func (h *handler) LockJoinDeposit(c *gin.Context) {
	circleID, caller, payment, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.LockJoinDeposit(c.Request.Context(), caller, circleID, payment)
	h.respondResult(c, caller, result, err)
}

// DepositContribution records the caller's contribution for the cycle
func (h *handler) DepositContribution(c *gin.Context) {
	circleID, caller, payment, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.DepositContribution(c.Request.Context(), caller, circleID, payment)
	h.respondResult(c, caller, result, err)
}

// ProcessPayout settles the current cycle
func (h *handler) ProcessPayout(c *gin.Context) {
	circleID, caller, _, ok := h.bindCallerRequest(c)
	if !ok {
		return
	}

	result, err := h.engine.ProcessPayout(c.Request.Context(), caller, circleID)
	h.respondResult(c, caller, result, err)
}

// BlockMember excludes a member from future cycles
func (h *handler) BlockMember(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var req BlockMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}
	member, err := domain.NormalizeAddress(req.Member)
	if err != nil {
		respondBadRequest(c, "Invalid member address")
		return
	}

	result, err := h.engine.BlockMember(c.Request.Context(), caller, circleID, member, req.Reason)
	h.respondResult(c, caller, result, err)
}

// DistributeBlockedFunds releases blocked members' locks to the members who
// deposited in the given cycle
func (h *handler) DistributeBlockedFunds(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var req DistributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}

	result, err := h.engine.DistributeBlockedFunds(c.Request.Context(), caller, circleID, req.Cycle)
	h.respondResult(c, caller, result, err)
}

// AddPrivateMember enrolls an address directly into a private circle
func (h *handler) AddPrivateMember(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var req PrivateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}
	member, err := domain.NormalizeAddress(req.Member)
	if err != nil {
		respondBadRequest(c, "Invalid member address")
		return
	}

	result, err := h.engine.AddPrivateMember(c.Request.Context(), caller, circleID, member, req.Pseudonym)
	h.respondResult(c, caller, result, err)
}

// UpdatePseudonym sets a member's display name in the circle
func (h *handler) UpdatePseudonym(c *gin.Context) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return
	}

	var req PseudonymRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return
	}
	member, err := domain.NormalizeAddress(req.Member)
	if err != nil {
		respondBadRequest(c, "Invalid member address")
		return
	}

	result, err := h.engine.UpdatePseudonym(c.Request.Context(), caller, circleID, member, req.Pseudonym)
	h.respondResult(c, caller, result, err)
}

// bindCallerRequest parses the circle id and the common caller body shared
// by most mutating endpoints
func (h *handler) bindCallerRequest(c *gin.Context) (uint64, domain.Address, *engine.Payment, bool) {
	circleID, ok := parseCircleID(c)
	if !ok {
		return 0, "", nil, false
	}

	var req CallerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err.Error())
		return 0, "", nil, false
	}

	caller, ok := normalizeCaller(c, req.Caller)
	if !ok {
		return 0, "", nil, false
	}

	return circleID, caller, req.Payment.toPayment(), true
}

// normalizeCaller parses the caller address from a request body. Requests
// authenticated with a member token may only act as the token subject;
// API key callers are trusted services acting on behalf of any address.
func normalizeCaller(c *gin.Context, raw string) (domain.Address, bool) {
	caller, err := domain.NormalizeAddress(raw)
	if err != nil {
		respondBadRequest(c, "Invalid caller address")
		return "", false
	}

	if authType, _ := c.Get(string(middleware.AUTH_TYPE_KEY)); authType == "jwt" {
		subjectVal, _ := c.Get(string(middleware.AUTH_SUBJECT_KEY))
		subject, _ := subjectVal.(string)
		tokenAddr, err := domain.NormalizeAddress(subject)
		if err != nil || tokenAddr != caller {
			respondForbidden(c, "Caller does not match authenticated subject")
			return "", false
		}
	}

	return caller, true
}

// respondResult finishes a mutating request: errors map to HTTP statuses,
// success publishes the committed event and returns the engine result
func (h *handler) respondResult(c *gin.Context, caller domain.Address, result *engine.Result, err error) {
	if err != nil {
		respondEngineError(c, err)
		return
	}

	h.publish(c, caller, result)
	c.JSON(http.StatusOK, result)
}

// publish forwards the committed operation to the message broker. The state
// change is already durable, so publish failures are logged, not returned.
func (h *handler) publish(c *gin.Context, caller domain.Address, result *engine.Result) {
	if h.publisher == nil {
		return
	}

	event := &messaging.CircleEvent{
		CircleID:  result.CircleID,
		EventType: result.Action,
		Action:    result.Action,
		Caller:    caller.String(),
		Atts:      result.Attributes,
		Timestamp: time.Now().UTC(),
	}
	for _, t := range result.Transfers {
		event.Transfers = append(event.Transfers, messaging.Transfer{
			ID:           t.ID,
			Recipient:    t.Recipient.String(),
			Denomination: t.Denomination,
			Amount:       t.Amount,
		})
	}

	if err := h.publisher.PublishCircleEvent(c.Request.Context(), event); err != nil {
		logger.Error(err,
			zap.String("action", result.Action),
			zap.Uint64("circle_id", result.CircleID),
		)
	}
}

// respondQueryError maps read-layer failures onto HTTP statuses
func (h *handler) respondQueryError(c *gin.Context, err error) {
	var domErr *domain.Error
	if errors.As(err, &domErr) {
		respondEngineError(c, err)
		return
	}
	respondInternalError(c, err, "Query failed")
}

func parseCircleID(c *gin.Context) (uint64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondBadRequest(c, "Invalid circle id")
		return 0, false
	}
	return id, true
}

func parseMemberAddress(c *gin.Context) (domain.Address, bool) {
	addr, err := domain.NormalizeAddress(c.Param("address"))
	if err != nil {
		respondBadRequest(c, "Invalid member address")
		return "", false
	}
	return addr, true
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"electa/internal/election/models"
	id "electa/pkg/domain"
	dErrors "electa/pkg/domain-errors"
	"electa/pkg/platform/httputil"
	"electa/pkg/requestcontext"
)

// Service is the election surface the HTTP layer drives.
type Service interface {
	CreateElection(ctx context.Context, req *models.CreateElectionRequest) (*models.ElectionView, error)
	UpdateElection(ctx context.Context, electionID id.ElectionID, req *models.UpdateElectionRequest) (*models.ElectionView, error)
	Transition(ctx context.Context, electionID id.ElectionID, target string) (*models.ElectionView, error)
	DeleteElection(ctx context.Context, electionID id.ElectionID, confirm bool) error
	GetElection(ctx context.Context, electionID id.ElectionID) (*models.ElectionView, error)
	ListElections(ctx context.Context) ([]*models.ElectionView, error)

	AddPosition(ctx context.Context, electionID id.ElectionID, req *models.AddPositionRequest) (*models.Position, error)
	UpdatePosition(ctx context.Context, positionID id.PositionID, req *models.UpdatePositionRequest) (*models.Position, error)
	DeletePosition(ctx context.Context, positionID id.PositionID) error
	ListPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error)
	ListMemberPositions(ctx context.Context, electionID id.ElectionID) ([]*models.Position, error)

	SubmitNomination(ctx context.Context, electionID id.ElectionID, nominatorID id.MemberID, req *models.SubmitNominationRequest) (*models.SubmitResult, error)
	RemainingQuota(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (*models.Quota, error)
	ListMyNominations(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) ([]*models.Nomination, error)
	ListOpenElections(ctx context.Context, memberID id.MemberID) ([]*models.ElectionView, error)
	CompleteNomination(ctx context.Context, electionID id.ElectionID, memberID id.MemberID) (*models.Summary, error)
	ExportNominations(ctx context.Context, electionID id.ElectionID) (*models.Export, error)
}

// Handler wires the administrative and member-facing election endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterAdmin mounts the administrative surface. The caller is responsible
// for guarding r with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/elections", h.HandleListElections)
	r.Post("/admin/elections", h.HandleCreateElection)
	r.Get("/admin/elections/{electionID}", h.HandleGetElection)
	r.Patch("/admin/elections/{electionID}", h.HandleUpdateElection)
	r.Delete("/admin/elections/{electionID}", h.HandleDeleteElection)
	r.Post("/admin/elections/{electionID}/transition", h.HandleTransition)
	r.Get("/admin/elections/{electionID}/positions", h.HandleListPositions)
	r.Post("/admin/elections/{electionID}/positions", h.HandleAddPosition)
	r.Get("/admin/elections/{electionID}/export", h.HandleExport)
	r.Patch("/admin/positions/{positionID}", h.HandleUpdatePosition)
	r.Delete("/admin/positions/{positionID}", h.HandleDeletePosition)
}

// RegisterMember mounts the member surface. The caller is responsible for
// authenticating the member.
func (h *Handler) RegisterMember(r chi.Router) {
	r.Get("/elections", h.HandleListOpenElections)
	r.Get("/elections/{electionID}/positions", h.HandleListMemberPositions)
	r.Get("/elections/{electionID}/quota", h.HandleQuota)
	r.Get("/elections/{electionID}/nominations", h.HandleListMyNominations)
	r.Post("/elections/{electionID}/nominations", h.HandleSubmitNomination)
	r.Post("/elections/{electionID}/complete", h.HandleComplete)
}

func electionIDParam(r *http.Request) (id.ElectionID, error) {
	electionID, err := id.ParseElectionID(chi.URLParam(r, "electionID"))
	if err != nil {
		return id.ElectionID{}, dErrors.New(dErrors.CodeBadRequest, "invalid election id")
	}
	return electionID, nil
}

func positionIDParam(r *http.Request) (id.PositionID, error) {
	positionID, err := id.ParsePositionID(chi.URLParam(r, "positionID"))
	if err != nil {
		return id.PositionID{}, dErrors.New(dErrors.CodeBadRequest, "invalid position id")
	}
	return positionID, nil
}

// member returns the authenticated caller or writes 401.
func (h *Handler) member(w http.ResponseWriter, r *http.Request) (id.MemberID, bool) {
	memberID := requestcontext.MemberID(r.Context())
	if memberID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.MemberID{}, false
	}
	return memberID, true
}

// fail logs server-side failures at Error and everything else at Warn before
// writing the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error, kv ...any) {
	ctx := r.Context()
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"code", dErrors.CodeOf(err),
		"error", err,
	}, kv...)
	switch httputil.StatusFor(dErrors.CodeOf(err)) {
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		h.logger.ErrorContext(ctx, msg, args...)
	default:
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

// Administrative surface

func (h *Handler) HandleListElections(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListElections(r.Context())
	if err != nil {
		h.fail(w, r, "list elections failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleCreateElection(w http.ResponseWriter, r *http.Request) {
	var req models.CreateElectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid create election request", err)
		return
	}
	view, err := h.service.CreateElection(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "create election failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) HandleGetElection(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	view, err := h.service.GetElection(r.Context(), electionID)
	if err != nil {
		h.fail(w, r, "get election failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleUpdateElection(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdateElectionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid update election request", err, "election_id", electionID)
		return
	}
	view, err := h.service.UpdateElection(r.Context(), electionID, &req)
	if err != nil {
		h.fail(w, r, "update election failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleDeleteElection requires ?confirm=true once nominations exist.
func (h *Handler) HandleDeleteElection(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	confirm := false
	if raw := r.URL.Query().Get("confirm"); raw != "" {
		confirm, err = strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "confirm must be a boolean"))
			return
		}
	}
	if err := h.service.DeleteElection(r.Context(), electionID, confirm); err != nil {
		h.fail(w, r, "delete election failed", err, "election_id", electionID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.TransitionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid transition request", err, "election_id", electionID)
		return
	}
	req.Normalize()
	view, err := h.service.Transition(r.Context(), electionID, req.Status)
	if err != nil {
		h.fail(w, r, "transition failed", err, "election_id", electionID, "target", req.Status)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleListPositions(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	positions, err := h.service.ListPositions(r.Context(), electionID)
	if err != nil {
		h.fail(w, r, "list positions failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.AddPositionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid add position request", err, "election_id", electionID)
		return
	}
	position, err := h.service.AddPosition(r.Context(), electionID, &req)
	if err != nil {
		h.fail(w, r, "add position failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, position)
}

func (h *Handler) HandleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	positionID, err := positionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.UpdatePositionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid update position request", err, "position_id", positionID)
		return
	}
	position, err := h.service.UpdatePosition(r.Context(), positionID, &req)
	if err != nil {
		h.fail(w, r, "update position failed", err, "position_id", positionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, position)
}

func (h *Handler) HandleDeletePosition(w http.ResponseWriter, r *http.Request) {
	positionID, err := positionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeletePosition(r.Context(), positionID); err != nil {
		h.fail(w, r, "delete position failed", err, "position_id", positionID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	export, err := h.service.ExportNominations(r.Context(), electionID)
	if err != nil {
		h.fail(w, r, "export nominations failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, export)
}

// Member surface

func (h *Handler) HandleListOpenElections(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	views, err := h.service.ListOpenElections(r.Context(), memberID)
	if err != nil {
		h.fail(w, r, "list open elections failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleListMemberPositions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.member(w, r); !ok {
		return
	}
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	positions, err := h.service.ListMemberPositions(r.Context(), electionID)
	if err != nil {
		h.fail(w, r, "list positions failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, positions)
}

func (h *Handler) HandleQuota(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	quota, err := h.service.RemainingQuota(r.Context(), electionID, memberID)
	if err != nil {
		h.fail(w, r, "remaining quota failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, quota)
}

func (h *Handler) HandleListMyNominations(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	nominations, err := h.service.ListMyNominations(r.Context(), electionID, memberID)
	if err != nil {
		h.fail(w, r, "list nominations failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, nominations)
}

func (h *Handler) HandleSubmitNomination(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req models.SubmitNominationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid nomination request", err, "election_id", electionID)
		return
	}
	result, err := h.service.SubmitNomination(r.Context(), electionID, memberID, &req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

// HandleComplete is read-only and safe to retry.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.member(w, r)
	if !ok {
		return
	}
	electionID, err := electionIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.service.CompleteNomination(r.Context(), electionID, memberID)
	if err != nil {
		h.fail(w, r, "complete nomination failed", err, "election_id", electionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

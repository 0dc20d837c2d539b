package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"electa/internal/election/models"
	"electa/internal/election/service"
	"electa/internal/election/store"
	jwttoken "electa/internal/jwt_token"
	"electa/internal/member"
	id "electa/pkg/domain"
	"electa/pkg/platform/middleware/admin"
	"electa/pkg/platform/middleware/auth"
	"electa/pkg/testutil"
)

const adminToken = "secret-token"

type HandlerSuite struct {
	suite.Suite
	router    http.Handler
	tokens    *jwttoken.JWTService
	now       time.Time
	nominator id.MemberID
	nominee   id.MemberID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nominator = id.MemberID(uuid.New())
	s.nominee = id.MemberID(uuid.New())
	s.tokens = jwttoken.NewJWTService("test-signing-key", "electa", "electa-members")

	directory := member.NewStaticDirectory(
		member.Member{ID: s.nominator, DisplayName: "Alice"},
		member.Member{ID: s.nominee, DisplayName: "Bob"},
	)
	svc, err := service.New(store.NewInMemory(), directory,
		service.WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := New(svc, logger)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterAdmin(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireMember(s.tokens, logger))
		h.RegisterMember(r)
	})
	s.router = r
}

func (s *HandlerSuite) adminRequest(method, path string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set(admin.HeaderAdminToken, adminToken)
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) memberRequest(memberID id.MemberID, method, path string, body any) *httptest.ResponseRecorder {
	token, err := s.tokens.IssueMemberToken(memberID, time.Hour)
	s.Require().NoError(err)
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set("Authorization", "Bearer "+token)
	return testutil.DoRequest(s.router, req)
}

// openElection drives the admin API to an open election with the given positions.
func (s *HandlerSuite) openElection(limit int, titles ...string) id.ElectionID {
	rec := s.adminRequest(http.MethodPost, "/admin/elections", models.CreateElectionRequest{
		Title:                   "2025 Exec",
		StartsAt:                s.now.Add(-time.Hour),
		EndsAt:                  s.now.Add(24 * time.Hour),
		MaxNominationsPerMember: limit,
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	view := testutil.UnmarshalResponse[models.ElectionView](s.T(), rec)

	for i, title := range titles {
		rec := s.adminRequest(http.MethodPost, "/admin/elections/"+view.ID.String()+"/positions",
			models.AddPositionRequest{Title: title, DisplayOrder: i})
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = s.adminRequest(http.MethodPost, "/admin/elections/"+view.ID.String()+"/transition",
		models.TransitionRequest{Status: "open"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	return view.ID
}

func (s *HandlerSuite) nominate(electionID id.ElectionID, position string) *httptest.ResponseRecorder {
	return s.memberRequest(s.nominator, http.MethodPost, "/elections/"+electionID.String()+"/nominations",
		models.SubmitNominationRequest{NomineeID: s.nominee.String(), Position: position})
}

// =============================================================================
// Authentication
// =============================================================================

func (s *HandlerSuite) TestAdminTokenRequired() {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/admin/elections", nil)
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestMemberTokenRequired() {
	req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/elections", nil)
	rec := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestMemberRoutesWithoutMiddleware() {
	svc, err := service.New(store.NewInMemory(), member.NewStaticDirectory())
	s.Require().NoError(err)
	r := chi.NewRouter()
	New(svc, nil).RegisterMember(r)

	s.Run("missing member is unauthorized", func() {
		req := testutil.NewJSONRequest(s.T(), http.MethodGet, "/elections", nil)
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(r, req), http.StatusUnauthorized, "unauthorized")
	})

	s.Run("member from context is used", func() {
		req := testutil.WithMember(testutil.NewJSONRequest(s.T(), http.MethodGet, "/elections", nil), s.nominator)
		rec := testutil.DoRequest(r, req)
		s.Equal(http.StatusOK, rec.Code)
	})
}

// =============================================================================
// Administrative surface
// =============================================================================

func (s *HandlerSuite) TestElectionLifecycle() {
	electionID := s.openElection(2, "Chair")
	path := "/admin/elections/" + electionID.String()

	s.Run("get returns effective status", func() {
		rec := s.adminRequest(http.MethodGet, path, nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		view := testutil.UnmarshalResponse[models.ElectionView](s.T(), rec)
		s.Equal(models.StatusOpen, view.EffectiveStatus)
		s.True(view.AcceptingNominations)
	})

	s.Run("structural edit on open election conflicts", func() {
		quota := 4
		rec := s.adminRequest(http.MethodPatch, path, models.UpdateElectionRequest{MaxNominationsPerMember: &quota})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "invalid_transition")
	})

	s.Run("backwards transition conflicts", func() {
		rec := s.adminRequest(http.MethodPost, path+"/transition", models.TransitionRequest{Status: "draft"})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "invalid_transition")
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.adminRequest(http.MethodPost, path+"/transition", map[string]string{"state": "closed"})
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
	})

	s.Run("target status ignores case and surrounding space", func() {
		rec := s.adminRequest(http.MethodPost, path+"/transition", models.TransitionRequest{Status: " Closed "})
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		view := testutil.UnmarshalResponse[models.ElectionView](s.T(), rec)
		s.Equal(models.StatusClosed, view.Status)
	})

	s.Run("list includes the election", func() {
		rec := s.adminRequest(http.MethodGet, "/admin/elections", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		views := testutil.UnmarshalResponse[[]models.ElectionView](s.T(), rec)
		s.Len(*views, 1)
	})
}

func (s *HandlerSuite) TestCreateElectionValidation() {
	rec := s.adminRequest(http.MethodPost, "/admin/elections", models.CreateElectionRequest{
		Title:                   "Bad window",
		StartsAt:                s.now,
		EndsAt:                  s.now.Add(-time.Hour),
		MaxNominationsPerMember: 1,
	})
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestDeleteElection() {
	electionID := s.openElection(2, "Chair")
	s.Require().Equal(http.StatusCreated, s.nominate(electionID, "Chair").Code)
	path := "/admin/elections/" + electionID.String()

	rec := s.adminRequest(http.MethodDelete, path, nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "validation_error")

	rec = s.adminRequest(http.MethodDelete, path+"?confirm=maybe", nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")

	rec = s.adminRequest(http.MethodDelete, path+"?confirm=true", nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.adminRequest(http.MethodGet, path, nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestPositions() {
	electionID := s.openElection(2, "Chair")
	base := "/admin/elections/" + electionID.String() + "/positions"

	rec := s.adminRequest(http.MethodPost, base, models.AddPositionRequest{Title: "chair"})
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "conflict")

	rec = s.adminRequest(http.MethodPost, base, models.AddPositionRequest{Title: "Treasurer", DisplayOrder: 1})
	s.Require().Equal(http.StatusCreated, rec.Code)
	treasurer := testutil.UnmarshalResponse[models.Position](s.T(), rec)

	order := 0
	rec = s.adminRequest(http.MethodPatch, "/admin/positions/"+treasurer.ID.String(),
		models.UpdatePositionRequest{DisplayOrder: &order})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.adminRequest(http.MethodGet, base, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	positions := *testutil.UnmarshalResponse[[]models.Position](s.T(), rec)
	s.Require().Len(positions, 2)

	rec = s.adminRequest(http.MethodDelete, "/admin/positions/"+treasurer.ID.String(), nil)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.adminRequest(http.MethodDelete, "/admin/positions/not-a-uuid", nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestExport() {
	electionID := s.openElection(2, "Chair", "Treasurer")
	s.Require().Equal(http.StatusCreated, s.nominate(electionID, "Treasurer").Code)

	rec := s.adminRequest(http.MethodGet, "/admin/elections/"+electionID.String()+"/export", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	export := testutil.UnmarshalResponse[models.Export](s.T(), rec)
	s.Equal(1, export.Total)
	s.Require().Len(export.Positions, 2)
	s.Empty(export.Positions[0].Nominations)
	s.Len(export.Positions[1].Nominations, 1)
}

// =============================================================================
// Member surface
// =============================================================================

func (s *HandlerSuite) TestNominationFlow() {
	electionID := s.openElection(2, "Chair", "Treasurer")
	base := "/elections/" + electionID.String()

	rec := s.memberRequest(s.nominator, http.MethodPost, base+"/complete", nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusUnprocessableEntity, "no_nominations_yet")

	rec = s.nominate(electionID, "Chair")
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	result := testutil.UnmarshalResponse[models.SubmitResult](s.T(), rec)
	s.Equal(1, result.RemainingQuota)
	s.Equal("Chair", result.Nomination.Position)

	rec = s.nominate(electionID, "chair")
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "duplicate_position")

	rec = s.nominate(electionID, "Secretary")
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")

	rec = s.nominate(electionID, "Treasurer")
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.memberRequest(s.nominator, http.MethodGet, base+"/quota", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	quota := testutil.UnmarshalResponse[models.Quota](s.T(), rec)
	s.Equal(0, quota.Remaining)

	rec = s.memberRequest(s.nominator, http.MethodGet, base+"/nominations", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Len(*testutil.UnmarshalResponse[[]models.Nomination](s.T(), rec), 2)

	rec = s.memberRequest(s.nominator, http.MethodPost, base+"/complete", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	summary := testutil.UnmarshalResponse[models.Summary](s.T(), rec)
	s.Equal(2, summary.DistinctPositions)
	s.Equal(2, summary.TotalNominations)
}

func (s *HandlerSuite) TestQuotaExceeded() {
	electionID := s.openElection(1, "Chair", "Treasurer")
	s.Require().Equal(http.StatusCreated, s.nominate(electionID, "Chair").Code)

	rec := s.nominate(electionID, "Treasurer")
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "quota_exceeded")
}

func (s *HandlerSuite) TestElectionNotOpen() {
	electionID := s.openElection(2, "Chair")
	s.now = s.now.Add(48 * time.Hour)

	rec := s.nominate(electionID, "Chair")
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "election_not_open")

	rec = s.memberRequest(s.nominator, http.MethodGet, "/elections", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Empty(*testutil.UnmarshalResponse[[]models.ElectionView](s.T(), rec))
}

func (s *HandlerSuite) TestMemberCannotSeeDraft() {
	rec := s.adminRequest(http.MethodPost, "/admin/elections", models.CreateElectionRequest{
		Title:                   "Draft",
		StartsAt:                s.now,
		EndsAt:                  s.now.Add(time.Hour),
		MaxNominationsPerMember: 1,
	})
	s.Require().Equal(http.StatusCreated, rec.Code)
	view := testutil.UnmarshalResponse[models.ElectionView](s.T(), rec)

	rec = s.memberRequest(s.nominator, http.MethodGet, "/elections/"+view.ID.String()+"/positions", nil)
	testutil.AssertStatusAndError(s.T(), rec, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestOpenElectionsListing() {
	electionID := s.openElection(3, "Chair")
	s.Require().Equal(http.StatusCreated, s.nominate(electionID, "Chair").Code)

	rec := s.memberRequest(s.nominator, http.MethodGet, "/elections", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	views := *testutil.UnmarshalResponse[[]models.ElectionView](s.T(), rec)
	s.Require().Len(views, 1)
	s.Require().NotNil(views[0].RemainingQuota)
	s.Equal(2, *views[0].RemainingQuota)
}

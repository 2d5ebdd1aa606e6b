package httpgin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/identity"
	"github.com/kirinyoku/openmic/internal/repository"
	"github.com/kirinyoku/openmic/internal/repository/memory"
	"github.com/kirinyoku/openmic/internal/service"
)

type memIdem struct {
	mu      sync.Mutex
	locks   map[string]bool
	results map[string]string
}

func newMemIdem() *memIdem {
	return &memIdem{locks: map[string]bool{}, results: map[string]string{}}
}

func (m *memIdem) GetResult(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.results[key]
	return v, ok, nil
}

func (m *memIdem) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *memIdem) SaveResult(_ context.Context, key, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[key] = payload
	return nil
}

func (m *memIdem) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

type RouterSuite struct {
	suite.Suite

	store    *memory.Store
	verifier *identity.Verifier
	router   *gin.Engine
	slotID   uuid.UUID

	hostTok   string
	memberTok string
	otherTok  string
	guestTok  string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	s.store = memory.New()
	s.store.AddEvent(domain.EventConfig{
		ID: 1, HostID: 10, TotalSlots: 2, SlotDurationMinutes: 7,
		SlotOfferWindowMinutes: 60, IsPublished: true,
	})
	s.store.AddMember(11, false)
	s.store.AddMember(12, false)

	s.slotID = uuid.New()
	s.Require().NoError(s.store.RunTx(context.Background(), func(ctx context.Context, tx repository.Repos) error {
		return tx.Timeslots().BatchCreate(ctx, []domain.Timeslot{
			{ID: s.slotID, EventID: 1, SlotIndex: 0, DurationMinutes: 7},
			{ID: uuid.New(), EventID: 1, SlotIndex: 1, DurationMinutes: 7},
		})
	}))

	s.verifier = identity.NewVerifier("router-test-secret")
	s.hostTok = s.token(10)
	s.memberTok = s.token(11)
	s.otherTok = s.token(12)

	var err error
	s.guestTok, err = s.verifier.IssueGuest("Sam", uuid.New(), time.Hour)
	s.Require().NoError(err)

	svcs := service.NewServices(s.store, s.store, nil, nil, nil, service.Config{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = NewRouter(svcs, s.verifier, newMemIdem(), nil, logger)
}

func (s *RouterSuite) token(memberID int64) string {
	tok, err := s.verifier.IssueMember(memberID, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) do(method, path, tok string, body string, headers ...string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *RouterSuite) decode(w *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *RouterSuite) TestHealthz() {
	w := s.do(http.MethodGet, "/healthz", "", "")
	s.Equal(http.StatusOK, w.Code)
	s.NotEmpty(w.Header().Get("X-Request-ID"))
}

func (s *RouterSuite) TestNoShowFlow() {
	slot := "/timeslots/" + s.slotID.String()

	w := s.do(http.MethodPost, slot+"/claims", s.memberTok, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var a ClaimResponse
	s.decode(w, &a)
	s.Equal(domain.ClaimConfirmed, a.Status)
	s.Equal(domain.OccupantRef{Kind: "member", MemberID: 11}, a.Occupant)

	w = s.do(http.MethodPost, slot+"/claims", s.otherTok, "")
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, slot+"/waitlist", s.guestTok, "")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var b ClaimResponse
	s.decode(w, &b)
	s.Equal(domain.ClaimWaitlist, b.Status)
	s.Equal(domain.OccupantRef{Kind: "guest", Name: "Sam"}, b.Occupant)

	w = s.do(http.MethodPost, "/admin/claims/"+a.ID.String()+"/no-show", s.otherTok, "")
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/admin/claims/"+a.ID.String()+"/no-show", s.hostTok, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var tr TransitionResponse
	s.decode(w, &tr)
	s.Equal(domain.ClaimNoShow, tr.Claim.Status)
	s.Require().NotNil(tr.Promotion)
	s.Equal(b.ID, tr.Promotion.ClaimID)

	w = s.do(http.MethodPost, "/claims/"+b.ID.String()+"/accept", s.memberTok, "")
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/claims/"+b.ID.String()+"/accept", s.guestTok, "")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var accepted ClaimResponse
	s.decode(w, &accepted)
	s.Equal(domain.ClaimConfirmed, accepted.Status)

	w = s.do(http.MethodPost, "/admin/claims/"+a.ID.String()+"/performed", s.hostTok, "")
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	n, err := s.store.Members().NoShowCount(context.Background(), 11)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *RouterSuite) TestAuthentication() {
	path := "/timeslots/" + s.slotID.String() + "/claims"

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, path, "", "").Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, path, "not-a-jwt", "").Code)

	w := s.do(http.MethodPost, path, "", "", "Authorization", "Basic Zm9vOmJhcg==")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *RouterSuite) TestIdempotentClaim() {
	path := "/timeslots/" + s.slotID.String() + "/claims"

	first := s.do(http.MethodPost, path, s.memberTok, "", "Idempotency-Key", "k-1")
	s.Require().Equal(http.StatusCreated, first.Code)

	second := s.do(http.MethodPost, path, s.memberTok, "", "Idempotency-Key", "k-1")
	s.Require().Equal(http.StatusCreated, second.Code)
	s.Equal("true", second.Header().Get("Idempotent-Replayed"))
	s.JSONEq(first.Body.String(), second.Body.String())

	// Same key from another caller is a different request.
	other := s.do(http.MethodPost, path, s.otherTok, "", "Idempotency-Key", "k-1")
	s.Equal(http.StatusConflict, other.Code)
}

func (s *RouterSuite) TestBoardETag() {
	w := s.do(http.MethodGet, "/events/1/timeslots", "", "")
	s.Require().Equal(http.StatusOK, w.Code)

	var board []domain.SlotView
	s.decode(w, &board)
	s.Len(board, 2)

	tag := w.Header().Get("ETag")
	s.NotEmpty(tag)

	w = s.do(http.MethodGet, "/events/1/timeslots", "", "", "If-None-Match", tag)
	s.Equal(http.StatusNotModified, w.Code)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/events/77/timeslots", "", "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/events/abc/timeslots", "", "").Code)
}

func (s *RouterSuite) TestLineup() {
	body := `{"timeslot_id":"` + s.slotID.String() + `"}`

	s.Equal(http.StatusForbidden, s.do(http.MethodPut, "/admin/events/1/lineup", s.memberTok, body).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPut, "/admin/events/1/lineup", s.hostTok, `{"timeslot_id":"x"}`).Code)

	w := s.do(http.MethodPut, "/admin/events/1/lineup", s.hostTok, body)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/events/1/lineup", "", "")
	s.Require().Equal(http.StatusOK, w.Code)
	var st domain.LineupState
	s.decode(w, &st)
	s.Require().NotNil(st.NowPlayingTimeslotID)
	s.Equal(s.slotID, *st.NowPlayingTimeslotID)

	w = s.do(http.MethodPut, "/admin/events/1/lineup", s.hostTok, `{"timeslot_id":null}`)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &st)
	s.Nil(st.NowPlayingTimeslotID)
}

func (s *RouterSuite) TestDeleteAndPromote() {
	slot := "/timeslots/" + s.slotID.String()

	w := s.do(http.MethodPost, slot+"/claims", s.memberTok, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	var a ClaimResponse
	s.decode(w, &a)

	w = s.do(http.MethodPost, slot+"/waitlist", s.otherTok, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	var c ClaimResponse
	s.decode(w, &c)

	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodDelete, "/claims/"+a.ID.String(), s.memberTok, "").Code)
	s.Equal(http.StatusNoContent, s.do(http.MethodDelete, "/claims/"+c.ID.String(), s.otherTok, "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/claims/"+c.ID.String(), s.otherTok, "").Code)

	w = s.do(http.MethodPost, "/admin/timeslots/"+s.slotID.String()+"/promote", s.hostTok, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var pr PromoteResponse
	s.decode(w, &pr)
	s.Nil(pr.Promotion)
}

func (s *RouterSuite) TestRegenerate() {
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/admin/events/1/timeslots/regenerate", s.guestTok, "").Code)

	w := s.do(http.MethodPost, "/admin/events/1/timeslots/regenerate", s.hostTok, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	var resp RegenerateResponse
	s.decode(w, &resp)
	s.Len(resp.Timeslots, 2)

	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/timeslots/"+s.slotID.String()+"/claims", s.memberTok, "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/timeslots/nope/claims", s.memberTok, "").Code)
}

func (s *RouterSuite) TestGetClaimVisibility() {
	w := s.do(http.MethodPost, "/timeslots/"+s.slotID.String()+"/claims", s.guestTok, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	var a ClaimResponse
	s.decode(w, &a)

	path := "/claims/" + a.ID.String()
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, path, "", "").Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, path, s.memberTok, "").Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, path, s.hostTok, "").Code)

	w = s.do(http.MethodGet, path, s.guestTok, "")
	s.Require().Equal(http.StatusOK, w.Code)
	var got ClaimResponse
	s.decode(w, &got)
	s.Equal(a.ID, got.ID)
}

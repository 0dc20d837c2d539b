package member

//go:generate mockgen -source=member.go -destination=mocks/mocks.go -package=mocks Directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "electa/pkg/domain"
	"electa/pkg/platform/sentinel"
)

type HTTPDirectorySuite struct {
	suite.Suite
	server  *httptest.Server
	known   id.MemberID
	dir     *HTTPDirectory
	failing bool
}

func TestHTTPDirectorySuite(t *testing.T) {
	suite.Run(t, new(HTTPDirectorySuite))
}

func (s *HTTPDirectorySuite) SetupTest() {
	s.known = id.MemberID(uuid.New())
	s.failing = false
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.failing {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if r.URL.Path != "/members/"+s.known.String() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(Member{ID: s.known, DisplayName: "Ada", Course: "Maths"})
	}))
	dir, err := NewHTTPDirectory(s.server.URL+"/", time.Second)
	s.Require().NoError(err)
	s.dir = dir
}

func (s *HTTPDirectorySuite) TearDownTest() {
	s.server.Close()
}

func (s *HTTPDirectorySuite) TestResolve() {
	ctx := context.Background()

	s.Run("known member resolves with attributes", func() {
		m, err := s.dir.Resolve(ctx, s.known)
		s.Require().NoError(err)
		s.Equal(s.known, m.ID)
		s.Equal("Ada", m.DisplayName)
		s.Equal("Maths", m.Course)
	})

	s.Run("unknown member maps to not found", func() {
		_, err := s.dir.Resolve(ctx, id.MemberID(uuid.New()))
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})

	s.Run("upstream failure maps to unavailable", func() {
		s.failing = true
		defer func() { s.failing = false }()
		_, err := s.dir.Resolve(ctx, s.known)
		s.True(errors.Is(err, sentinel.ErrUnavailable))
	})
}

func (s *HTTPDirectorySuite) TestUnreachableDirectory() {
	dir, err := NewHTTPDirectory("http://127.0.0.1:1", 100*time.Millisecond)
	s.Require().NoError(err)
	_, err = dir.Resolve(context.Background(), s.known)
	s.True(errors.Is(err, sentinel.ErrUnavailable))
}

func (s *HTTPDirectorySuite) TestInvalidBaseURL() {
	_, err := NewHTTPDirectory("not a url", time.Second)
	s.Error(err)
}

func TestStaticDirectory(t *testing.T) {
	known := id.MemberID(uuid.New())
	dir := NewStaticDirectory(Member{ID: known, DisplayName: "Grace"})

	m, err := dir.Resolve(context.Background(), known)
	if err != nil || m.DisplayName != "Grace" {
		t.Fatalf("expected Grace, got %v, %v", m, err)
	}

	other := id.MemberID(uuid.New())
	if _, err := dir.Resolve(context.Background(), other); !errors.Is(err, sentinel.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	dir.Add(Member{ID: other})
	if _, err := dir.Resolve(context.Background(), other); err != nil {
		t.Fatalf("expected added member to resolve, got %v", err)
	}
}

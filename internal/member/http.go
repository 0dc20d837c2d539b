package member

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	id "electa/pkg/domain"
	"electa/pkg/platform/sentinel"
)

// HTTPDirectory calls the directory service's GET /members/{id} endpoint.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(baseURL string, timeout time.Duration) (*HTTPDirectory, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid member directory url: %w", err)
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (d *HTTPDirectory) Resolve(ctx context.Context, memberID id.MemberID) (*Member, error) {
	endpoint := d.baseURL + "/members/" + url.PathEscape(memberID.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: directory request: %v", sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: directory returned %d", sentinel.ErrUnavailable, resp.StatusCode)
	}

	var m Member
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode directory response: %v", sentinel.ErrUnavailable, err)
	}
	if m.ID.IsNil() {
		m.ID = memberID
	}
	return &m, nil
}

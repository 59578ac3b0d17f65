package sprintbooksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sprintbook/internal/slots"
)

// Client is a minimal Sprintbook HTTP API client.
type Client struct {
	BaseURL string
	// BasePath is the API prefix, /api unless the server is configured otherwise.
	BasePath    string
	Tribe       string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client acting for tribe.
func New(baseURL, tribe string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Tribe:    tribe,
		Timeout:  10 * time.Second,
	}
}

type Assignment struct {
	ID             string `json:"id"`
	QuarterID      string `json:"quarter_id"`
	Tribe          string `json:"tribe"`
	App            string `json:"app"`
	ResourceName   string `json:"resource_name"`
	Role           string `json:"role"`
	AssignmentType string `json:"assignment_type"`
	S1             bool   `json:"s1"`
	S2             bool   `json:"s2"`
	S3             bool   `json:"s3"`
	S4             bool   `json:"s4"`
	S5             bool   `json:"s5"`
	S6             bool   `json:"s6"`
	Edited         bool   `json:"edited"`
	UpdatedAt      string `json:"updated_at"`
}

// Slots returns the held sprints as a vector.
func (a Assignment) Slots() slots.Vector {
	return slots.Vector{a.S1, a.S2, a.S3, a.S4, a.S5, a.S6}
}

func (a Assignment) TribeKey() slots.TribeKey {
	return slots.TribeKey{Tribe: a.Tribe, ResourceName: a.ResourceName, Role: a.Role}
}

type TempAssignment struct {
	ID           string `json:"id"`
	QuarterID    string `json:"quarter_id"`
	Tribe        string `json:"tribe"`
	App          string `json:"app"`
	ResourceName string `json:"resource_name"`
	Role         string `json:"role"`
	AssignType   string `json:"assign_type"`
	Reserved     int    `json:"reserved"`
}

func (t TempAssignment) TribeKey() slots.TribeKey {
	return slots.TribeKey{Tribe: t.Tribe, ResourceName: t.ResourceName, Role: t.Role}
}

// Availability mirrors the server's view; flags are 0/1 with index 0 as sprint 1.
type Availability struct {
	Tribe         string     `json:"tribe"`
	ResourceName  string     `json:"resource_name"`
	Role          string     `json:"role"`
	AssignType    string     `json:"assign_type"`
	Blocked       []int      `json:"blocked"`
	Mine          []int      `json:"mine"`
	CapPerTribe   int        `json:"cap_per_tribe"`
	BookedByTribe int        `json:"booked_by_tribe"`
	Remaining     int        `json:"remaining"`
	TakenBy       [][]string `json:"taken_by"`
}

type SprintView struct {
	Index   int      `json:"index"`
	Blocked bool     `json:"blocked"`
	Mine    bool     `json:"mine"`
	TakenBy []string `json:"taken_by"`
	CanBook bool     `json:"can_book"`
}

type TempDetail struct {
	Temp          TempAssignment `json:"temp"`
	Assignment    *Assignment    `json:"assignment,omitempty"`
	AllowedTribes []string       `json:"allowed_tribes"`
	Sprints       []SprintView   `json:"sprints"`
	Availability  Availability   `json:"availability"`
}

type CommitResult struct {
	Assignment Assignment `json:"assignment"`
	Unchanged  bool       `json:"unchanged"`
}

type BookResult struct {
	OK         bool       `json:"ok"`
	Assignment Assignment `json:"assignment"`
	Unchanged  bool       `json:"unchanged"`
	Redirect   string     `json:"redirect"`
}

// Filters narrow assignment and temp listings by case-insensitive substring.
type Filters struct {
	Quarter  string
	Tribe    string
	App      string
	Resource string
	Role     string
	Type     string
}

func (f Filters) query() url.Values {
	v := url.Values{}
	for key, val := range map[string]string{
		"quarter": f.Quarter, "tribe": f.Tribe, "app": f.App,
		"resource": f.Resource, "role": f.Role, "type": f.Type,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return v
}

// APIError wraps non-2xx responses and carries the server's error envelope.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    []string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports a slot conflict: availability changed under the caller.
func IsConflict(err error) bool { return hasCode(err, "slot_conflict") }

func IsCapExceeded(err error) bool { return hasCode(err, "cap_exceeded") }

func hasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) ListAssignments(ctx context.Context, f Filters) ([]Assignment, error) {
	var resp struct {
		Items []Assignment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("assignments", f.query()), nil, &resp)
	return resp.Items, err
}

func (c *Client) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	err := c.do(ctx, http.MethodGet, "assignments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CommitSlots replaces an assignment's sprints with exactly the given ones.
func (c *Client) CommitSlots(ctx context.Context, id string, sprints []int) (CommitResult, error) {
	v, err := slots.FromSprints(sprints)
	if err != nil {
		return CommitResult{}, err
	}
	body := map[string]bool{}
	for i, on := range v {
		body[fmt.Sprintf("s%d", i+1)] = on
	}
	var resp CommitResult
	err = c.do(ctx, http.MethodPatch, "assignments/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// Availability fetches the tribe's view of a resource/role.
func (c *Client) Availability(ctx context.Context, key slots.TribeKey) (Availability, error) {
	q := url.Values{}
	q.Set("tribe", key.Tribe)
	q.Set("resource_name", key.ResourceName)
	q.Set("role", key.Role)
	var resp Availability
	err := c.do(ctx, http.MethodGet, withQuery("availability", q), nil, &resp)
	return resp, err
}

func (c *Client) ListTemps(ctx context.Context, f Filters) ([]TempAssignment, error) {
	var resp struct {
		Items []TempAssignment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("temp-assignments", f.query()), nil, &resp)
	return resp.Items, err
}

func (c *Client) TempDetail(ctx context.Context, id string) (TempDetail, error) {
	var resp TempDetail
	err := c.do(ctx, http.MethodGet, "temp-assignments/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// BookTemp confirms sprints against a temp hold.
func (c *Client) BookTemp(ctx context.Context, tempID string, sprints []int) (BookResult, error) {
	var resp BookResult
	err := c.do(ctx, http.MethodPost, "book-temp/"+url.PathEscape(tempID), map[string]any{"sprints": sprints}, &resp)
	return resp, err
}

// Export downloads the quarter's assignments as csv or json.
func (c *Client) Export(ctx context.Context, f Filters, format string) ([]byte, error) {
	q := f.query()
	if format != "" {
		q.Set("format", format)
	}
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, withQuery("export", q), nil, &buf)
	return buf.Bytes(), err
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.Tribe != "":
		req.Header.Set("X-Tribe", c.Tribe)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error   string   `json:"error"`
			Code    string   `json:"code"`
			Details []string `json:"details"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Message, apiErr.Code, apiErr.Details = envelope.Error, envelope.Code, envelope.Details
		}
		return apiErr
	}
	switch dst := out.(type) {
	case nil:
		return nil
	case *bytes.Buffer:
		_, err := io.Copy(dst, resp.Body)
		return err
	default:
		return json.NewDecoder(resp.Body).Decode(out)
	}
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

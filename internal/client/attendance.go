package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scangate/internal/config"
	"scangate/internal/model"
)

// Client talks to the gym backend's attendance API. Every request carries
// the client timeout so a hung network can never leave a toggle pending
// forever.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(cfg config.BackendConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) addAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

type toggleRequest struct {
	UserID     string `json:"userId"`
	LocationID string `json:"locationId"`
}

type attendancePayload struct {
	User         model.AttendanceUser `json:"user"`
	CheckinTime  time.Time            `json:"checkinTime"`
	CheckoutTime *time.Time           `json:"checkoutTime,omitempty"`
	Hours        float64              `json:"hours,omitempty"`
}

type toggleResponse struct {
	Success    bool              `json:"success"`
	Action     string            `json:"action"`
	Attendance attendancePayload `json:"attendance"`
	Message    string            `json:"message,omitempty"`
}

// Toggle flips the user's attendance at the location. The server decides
// whether it is a checkin or a checkout.
func (c *Client) Toggle(ctx context.Context, userID, locationID string) (*model.ToggleResult, error) {
	reqBody, err := json.Marshal(toggleRequest{UserID: userID, LocationID: locationID})
	if err != nil {
		return nil, err
	}
	apiURL := c.baseURL + "/api/attendance/toggle"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toggle request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("toggle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("toggle failed: %s", extractMessage(body, resp.Status))
	}

	var parsed toggleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("toggle response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("toggle failed: %s", extractMessage(body, resp.Status))
	}
	action := model.Action(parsed.Action)
	if action != model.ActionCheckin && action != model.ActionCheckout {
		return nil, fmt.Errorf("toggle failed: unexpected action %q", parsed.Action)
	}
	return &model.ToggleResult{
		Action: action,
		Record: model.AttendanceRecord{
			User:         parsed.Attendance.User,
			CheckinTime:  parsed.Attendance.CheckinTime,
			CheckoutTime: parsed.Attendance.CheckoutTime,
			Hours:        parsed.Attendance.Hours,
		},
	}, nil
}

type historyResponse struct {
	Success     bool                     `json:"success"`
	Attendances []model.AttendanceRecord `json:"attendances"`
	Location    string                   `json:"location,omitempty"`
	Message     string                   `json:"message,omitempty"`
}

// History fetches attendance records for a location and date range.
// Read-only and idempotent; safe to call repeatedly.
func (c *Client) History(ctx context.Context, locationID string, start, end time.Time) ([]model.AttendanceRecord, error) {
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("startDate", start.UTC().Format(time.RFC3339))
	q.Set("endDate", end.UTC().Format(time.RFC3339))
	apiURL := c.baseURL + "/api/attendance?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	c.addAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("history response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history failed: %s", extractMessage(body, resp.Status))
	}
	var parsed historyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("history response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("history failed: %s", extractMessage(body, resp.Status))
	}
	return parsed.Attendances, nil
}

// extractMessage pulls the server-reported message out of a response body,
// falling back to the transport status line.
func extractMessage(body []byte, status string) string {
	var m struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &m); err == nil && strings.TrimSpace(m.Message) != "" {
		return m.Message
	}
	return status
}

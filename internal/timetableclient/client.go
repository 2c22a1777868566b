package timetableclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"beacontrack/internal/timetable"
)

// Client calls the external timetable provider.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, Events returns a small canned
// timetable so the worker runs without a provider (dev mode).
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Health probes the provider.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("timetable provider health: status %d", resp.StatusCode)
	}
	return nil
}

// Events fetches the raw event list for one student. The response body is
// the provider's JSON array; decoding is the only processing done here —
// normalization belongs to the timetable package.
func (c *Client) Events(ctx context.Context, username string) ([]timetable.RawEvent, error) {
	if c.Skip {
		return cannedEvents(), nil
	}

	u := fmt.Sprintf("%s/timetable/%s", c.BaseURL, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("timetable provider: status %d for %s", resp.StatusCode, username)
	}

	var events []timetable.RawEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode timetable response: %w", err)
	}
	return events, nil
}

// cannedEvents fabricates three Monday lectures around today so dev-mode
// reconciliation has something to chew on.
func cannedEvents() []timetable.RawEvent {
	monday := time.Now().UTC()
	for monday.Weekday() != time.Monday {
		monday = monday.AddDate(0, 0, -1)
	}
	var events []timetable.RawEvent
	for week := -2; week <= 0; week++ {
		date := monday.AddDate(0, 0, 7*week).Format("2006-01-02")
		events = append(events, timetable.RawEvent{
			Course:   "CS101",
			Room:     "BuildingA:101",
			Start:    date + " 09:00:00",
			End:      date + " 10:00:00",
			Date:     date,
			Lecturer: "Turing, Alan",
		})
	}
	return events
}

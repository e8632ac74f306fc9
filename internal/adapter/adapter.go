// Package adapter fetches raw timetables from the institutional
// backends. Each college speaks its own protocol; the quirks stay in
// here and every adapter hands the same coalesced section list to the
// import path.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"classtable-service/internal/models"
)

// ScheduleSource is the single contract the sync pipeline sees.
type ScheduleSource interface {
	College() models.College
	FetchSchedules(ctx context.Context, semester models.Semester) ([]models.CourseClassSchedule, error)
}

// ProgressFunc reports per-section progress for sources that need one
// round-trip per section.
type ProgressFunc func(done, total int)

func getJSON(ctx context.Context, client *http.Client, rawURL string, query url.Values, cookies []*http.Cookie, out any) error {
	const op = "adapter.getJSON"

	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func postForm(ctx context.Context, client *http.Client, rawURL string, form url.Values, cookies []*http.Cookie, out any) error {
	const op = "adapter.postForm"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// prime performs a fire-and-forget GET that establishes the upstream
// server session before the real data call.
func prime(ctx context.Context, client *http.Client, rawURL string, cookies []*http.Cookie) error {
	const op = "adapter.prime"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

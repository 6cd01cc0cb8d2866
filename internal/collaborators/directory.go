package collaborators

import (
	"context"
	"time"

	"github.com/fieldops/backend/usecase/jobs"
)

// EmployeeDirectoryClient resolves employee ids to names and hourly rates.
type EmployeeDirectoryClient struct {
	client *client
}

// NewEmployeeDirectoryClient points at the employee directory service.
func NewEmployeeDirectoryClient(baseURL string, timeout time.Duration) *EmployeeDirectoryClient {
	return &EmployeeDirectoryClient{client: newClient(baseURL, timeout)}
}

func (c *EmployeeDirectoryClient) Resolve(ctx context.Context, employeeID string) (*jobs.EmployeeSnapshot, error) {
	var snapshot jobs.EmployeeSnapshot
	if err := c.client.getJSON(ctx, "/employees/"+employeeID, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// TimeEntryClient resolves time-entry references to durations.
type TimeEntryClient struct {
	client *client
}

// NewTimeEntryClient points at the time-tracking service.
func NewTimeEntryClient(baseURL string, timeout time.Duration) *TimeEntryClient {
	return &TimeEntryClient{client: newClient(baseURL, timeout)}
}

func (c *TimeEntryClient) Durations(ctx context.Context, refs []string) (map[string]int, error) {
	request := struct {
		Refs []string `json:"refs"`
	}{Refs: refs}

	var response struct {
		Minutes map[string]int `json:"minutes"`
	}
	if err := c.client.postJSON(ctx, "/time-entries/durations", request, &response); err != nil {
		return nil, err
	}
	return response.Minutes, nil
}

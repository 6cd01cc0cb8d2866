package collaborators

import (
	"context"
	"time"

	"github.com/fieldops/backend/domain"
)

// InvoiceClient hands frozen finance snapshots to the billing service.
type InvoiceClient struct {
	client *client
}

// NewInvoiceClient points at the invoice writer service.
func NewInvoiceClient(baseURL string, timeout time.Duration) *InvoiceClient {
	return &InvoiceClient{client: newClient(baseURL, timeout)}
}

func (c *InvoiceClient) Attach(ctx context.Context, jobID string, finance domain.JobFinance) (string, string, error) {
	request := struct {
		JobID    string  `json:"job_id"`
		Revenue  float64 `json:"revenue"`
		Labor    float64 `json:"labor_cost"`
		Material float64 `json:"material_cost"`
		Billable bool    `json:"billable"`
	}{
		JobID:    jobID,
		Revenue:  finance.RevenueAmountSnapshot,
		Labor:    finance.LaborCostSnapshot,
		Material: finance.MaterialCostSnapshot,
		Billable: finance.Billable,
	}

	var response struct {
		InvoiceRef string `json:"invoice_ref"`
		LineID     string `json:"line_id"`
	}
	if err := c.client.postJSON(ctx, "/invoices", request, &response); err != nil {
		return "", "", err
	}
	return response.InvoiceRef, response.LineID, nil
}

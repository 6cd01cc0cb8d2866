package collaborators

import (
	"context"
	"time"
)

// ContractClient resolves contract labels and fixed pricing.
type ContractClient struct {
	client *client
}

// NewContractClient points at the contract service.
func NewContractClient(baseURL string, timeout time.Duration) *ContractClient {
	return &ContractClient{client: newClient(baseURL, timeout)}
}

func (c *ContractClient) Price(ctx context.Context, contractID string) (float64, error) {
	var response struct {
		Price float64 `json:"price"`
	}
	if err := c.client.getJSON(ctx, "/contracts/"+contractID+"/price", &response); err != nil {
		return 0, err
	}
	return response.Price, nil
}

func (c *ContractClient) Label(ctx context.Context, contractID string) (string, error) {
	var response struct {
		Label string `json:"label"`
	}
	if err := c.client.getJSON(ctx, "/contracts/"+contractID, &response); err != nil {
		return "", err
	}
	return response.Label, nil
}

// EntityReaderClient resolves a generic external entity (apartment, service,
// category) to its display label.
type EntityReaderClient struct {
	client *client
	prefix string
}

// NewEntityReaderClient reads entities under the given path prefix, for
// example "/apartments".
func NewEntityReaderClient(baseURL, prefix string, timeout time.Duration) *EntityReaderClient {
	return &EntityReaderClient{client: newClient(baseURL, timeout), prefix: prefix}
}

func (c *EntityReaderClient) Label(ctx context.Context, id string) (string, error) {
	var response struct {
		Label string `json:"label"`
	}
	if err := c.client.getJSON(ctx, c.prefix+"/"+id, &response); err != nil {
		return "", err
	}
	return response.Label, nil
}

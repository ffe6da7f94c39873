package gateway

import (
	"context"
	"fmt"

	"github.com/zfogg/daredrop/pkg/logger"
)

const functionsPath = "/functions/v1/"

// Invoke posts body to the named edge function and decodes the response into dest when non-nil
func (c *Client) Invoke(ctx context.Context, name string, body interface{}, dest interface{}) error {
	logger.Debug("Invoking function", "name", name)

	req := c.http.R().SetContext(ctx).SetBody(body)
	resp, err := req.Post(functionsPath + name)
	if err := CheckResponse(resp, err); err != nil {
		return fmt.Errorf("function %s failed: %w", name, err)
	}
	if dest != nil {
		if err := json.Unmarshal(resp.Body(), dest); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", name, err)
		}
	}
	return nil
}

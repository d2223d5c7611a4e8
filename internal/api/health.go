package api

import (
	"context"
	"net/http"
	"time"
)

// HealthService checks backend liveness.
type HealthService struct {
	c *Client
}

// HealthResponse is the backend health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *HealthService) Check(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := s.c.do(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

package api

import (
	"context"
	"net/http"

	"staylink/internal/models"
	"staylink/internal/validate"
)

func (c *Client) GetProfile(ctx context.Context) (*models.Profile, error) {
	var out models.Profile
	if err := c.Do(ctx, http.MethodGet, "/api/profile", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req models.ProfileUpdateRequest) (*models.Profile, error) {
	if req.Phone != "" {
		phone, err := validate.Phone(req.Phone)
		if err != nil {
			return nil, err
		}
		req.Phone = phone
	}
	if req.Nickname != "" {
		if err := validate.Nickname(req.Nickname); err != nil {
			return nil, err
		}
	}

	var out models.Profile
	if err := c.Do(ctx, http.MethodPut, "/api/profile", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

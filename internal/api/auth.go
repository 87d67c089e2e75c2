package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"staylink/internal/models"
	"staylink/internal/validate"
)

// Login posts credentials; the access token arrives in the Authorization
// response header and is stored by the pipeline, the refresh cookie by the jar.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := validate.Email(req.Email); err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, &validate.FieldError{Field: "password", Message: "비밀번호를 입력해주세요."}
	}

	var out models.LoginResponse
	if err := c.Do(ctx, http.MethodPost, "/api/auth/login", nil, req, &out); err != nil {
		return nil, err
	}
	if c.session.Token() == "" {
		return nil, &Error{Kind: KindRequest, Status: http.StatusOK, Message: "login response carried no token"}
	}
	return &out, nil
}

// Logout always clears local state, even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/api/auth/logout", nil, nil, nil)
	c.session.Clear()
	if c.wishlist != nil {
		c.wishlist.reset()
	}
	if err != nil && !IsAuthError(err) {
		return err
	}
	return nil
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	return q
}

func pathID(id int64) string {
	return strconv.FormatInt(id, 10)
}

var errEmptyID = errors.New("id is required")

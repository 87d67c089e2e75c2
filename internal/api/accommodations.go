package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"staylink/internal/models"
	"staylink/internal/validate"
)

func (c *Client) SearchAccommodations(ctx context.Context, q models.SearchQuery) (*models.Page[models.Accommodation], error) {
	query := pageQuery(q.Page, q.Size)
	if q.Keyword != "" {
		query.Set("keyword", q.Keyword)
	}
	if q.Region != "" {
		query.Set("region", q.Region)
	}
	if q.CheckIn != "" || q.CheckOut != "" {
		if _, _, err := validate.DateRange(q.CheckIn, q.CheckOut, time.Now()); err != nil {
			return nil, err
		}
		query.Set("checkIn", q.CheckIn)
		query.Set("checkOut", q.CheckOut)
	}
	if q.Guests > 0 {
		query.Set("guests", strconv.Itoa(q.Guests))
	}
	if q.MinPrice > 0 {
		query.Set("minPrice", strconv.FormatInt(q.MinPrice, 10))
	}
	if q.MaxPrice > 0 {
		query.Set("maxPrice", strconv.FormatInt(q.MaxPrice, 10))
	}

	var out models.Page[models.Accommodation]
	if err := c.Do(ctx, http.MethodGet, "/api/accommodations", query, nil, &out); err != nil {
		return nil, err
	}
	c.applyWishlist(out.Contents)
	return &out, nil
}

func (c *Client) GetAccommodation(ctx context.Context, id int64) (*models.Accommodation, error) {
	var out models.Accommodation
	if err := c.Do(ctx, http.MethodGet, "/api/accommodations/"+pathID(id), nil, nil, &out); err != nil {
		return nil, err
	}
	if c.wishlist != nil {
		out.IsWishlisted = out.IsWishlisted || c.wishlist.contains(out.ID)
	}
	return &out, nil
}

// Reviews

func (c *Client) ListReviews(ctx context.Context, accommodationID int64, page, size int) (*models.Page[models.Review], error) {
	var out models.Page[models.Review]
	path := "/api/accommodations/" + pathID(accommodationID) + "/reviews"
	if err := c.Do(ctx, http.MethodGet, path, pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateReview(ctx context.Context, req models.ReviewRequest) (*models.Review, error) {
	if err := validateReview(req); err != nil {
		return nil, err
	}
	var out models.Review
	if err := c.Do(ctx, http.MethodPost, "/api/reviews", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateReview(ctx context.Context, id int64, req models.ReviewRequest) (*models.Review, error) {
	if err := validateReview(req); err != nil {
		return nil, err
	}
	var out models.Review
	if err := c.Do(ctx, http.MethodPut, "/api/reviews/"+pathID(id), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteReview(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, "/api/reviews/"+pathID(id), nil, nil, nil)
}

func validateReview(req models.ReviewRequest) error {
	if err := validate.Rating(req.Rating); err != nil {
		return err
	}
	return validate.ReviewContent(req.Content)
}

// Recent views

func (c *Client) RecentViews(ctx context.Context) ([]models.RecentView, error) {
	var out []models.RecentView
	if err := c.Do(ctx, http.MethodGet, "/api/recent-views", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Support chatbot

func (c *Client) AskChatbot(ctx context.Context, question string) (string, error) {
	if question == "" {
		return "", &validate.FieldError{Field: "question", Message: "질문을 입력해주세요."}
	}
	var out models.ChatbotResponse
	if err := c.Do(ctx, http.MethodPost, "/api/chatbot", nil, models.ChatbotRequest{Question: question}, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

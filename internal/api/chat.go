package api

import (
	"context"
	"net/http"
	"net/url"

	"staylink/internal/models"
)

func (c *Client) ListChatRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var out []models.ChatRoom
	if err := c.Do(ctx, http.MethodGet, "/api/chat/rooms", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartChat opens, or returns the existing, room with a counterpart.
func (c *Client) StartChat(ctx context.Context, req models.StartChatRequest) (*models.ChatRoom, error) {
	if req.CounterpartID == "" {
		return nil, errEmptyID
	}
	var out models.ChatRoom
	if err := c.Do(ctx, http.MethodPost, "/api/chat/rooms", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchMessages returns one page of room history, newest first.
func (c *Client) FetchMessages(ctx context.Context, roomID string, page, size int) (*models.Page[models.ChatMessage], error) {
	if roomID == "" {
		return nil, errEmptyID
	}
	var out models.Page[models.ChatMessage]
	path := "/api/chat/rooms/" + url.PathEscape(roomID) + "/messages"
	if err := c.Do(ctx, http.MethodGet, path, pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRoomRead tells the server the user has seen the room.
func (c *Client) MarkRoomRead(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errEmptyID
	}
	return c.Do(ctx, http.MethodPost, "/api/chat/rooms/"+url.PathEscape(roomID)+"/read", nil, nil, nil)
}

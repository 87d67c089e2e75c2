package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"staylink/internal/db"
	"staylink/internal/models"
	"staylink/internal/validate"
)

func (c *Client) ListWishlists(ctx context.Context) ([]models.Wishlist, error) {
	var out []models.Wishlist
	if err := c.Do(ctx, http.MethodGet, "/api/wishlists", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWishlist(ctx context.Context, name string) (*models.Wishlist, error) {
	if err := validate.WishlistName(name); err != nil {
		return nil, err
	}
	var out models.Wishlist
	if err := c.Do(ctx, http.MethodPost, "/api/wishlists", nil, models.CreateWishlistRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RenameWishlist(ctx context.Context, id int64, name string) error {
	if err := validate.WishlistName(name); err != nil {
		return err
	}
	return c.Do(ctx, http.MethodPut, "/api/wishlists/"+pathID(id), nil, models.CreateWishlistRequest{Name: name}, nil)
}

func (c *Client) DeleteWishlist(ctx context.Context, id int64) error {
	if err := c.Do(ctx, http.MethodDelete, "/api/wishlists/"+pathID(id), nil, nil, nil); err != nil {
		return err
	}
	if c.wishlist != nil {
		c.wishlist.dropList(id)
	}
	return nil
}

func (c *Client) WishlistItems(ctx context.Context, id int64, page, size int) (*models.Page[models.Accommodation], error) {
	var out models.Page[models.Accommodation]
	path := "/api/wishlists/" + pathID(id) + "/accommodations"
	if err := c.Do(ctx, http.MethodGet, path, pageQuery(page, size), nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Contents {
		out.Contents[i].IsWishlisted = true
		if c.wishlist != nil {
			c.wishlist.add(out.Contents[i].ID, id)
		}
	}
	return &out, nil
}

func (c *Client) AddToWishlist(ctx context.Context, wishlistID, accommodationID int64, memo string) error {
	path := "/api/wishlists/" + pathID(wishlistID) + "/accommodations"
	req := models.WishlistItemRequest{AccommodationID: accommodationID, Memo: memo}
	if err := c.Do(ctx, http.MethodPost, path, nil, req, nil); err != nil {
		return err
	}
	if c.wishlist != nil {
		c.wishlist.add(accommodationID, wishlistID)
	}
	return nil
}

func (c *Client) RemoveFromWishlist(ctx context.Context, wishlistID, accommodationID int64) error {
	path := "/api/wishlists/" + pathID(wishlistID) + "/accommodations/" + pathID(accommodationID)
	if err := c.Do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		return err
	}
	if c.wishlist != nil {
		c.wishlist.remove(accommodationID)
	}
	return nil
}

// IsWishlisted answers from the local cache without a network call.
func (c *Client) IsWishlisted(accommodationID int64) bool {
	return c.wishlist != nil && c.wishlist.contains(accommodationID)
}

func (c *Client) applyWishlist(items []models.Accommodation) {
	if c.wishlist == nil {
		return
	}
	for i := range items {
		if items[i].IsWishlisted {
			continue
		}
		items[i].IsWishlisted = c.wishlist.contains(items[i].ID)
	}
}

// wishlistCache remembers which accommodations are saved, and in which list,
// under the wishlist-storage key.
type wishlistCache struct {
	mu      sync.Mutex
	items   map[int64]int64 // accommodation -> wishlist
	storage KV
	logger  zerolog.Logger
}

type wishlistState struct {
	State struct {
		Items map[string]int64 `json:"items"`
	} `json:"state"`
	Version int `json:"version"`
}

func newWishlistCache(storage KV, logger zerolog.Logger) *wishlistCache {
	wc := &wishlistCache{items: map[int64]int64{}, storage: storage, logger: logger}

	raw, ok, err := storage.Get(db.WishlistKey)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load wishlist cache")
		return wc
	}
	if !ok {
		return wc
	}
	var st wishlistState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		logger.Warn().Err(err).Msg("discarding unreadable wishlist cache")
		return wc
	}
	for k, v := range st.State.Items {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		wc.items[id] = v
	}
	return wc
}

func (wc *wishlistCache) contains(accommodationID int64) bool {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	_, ok := wc.items[accommodationID]
	return ok
}

func (wc *wishlistCache) add(accommodationID, wishlistID int64) {
	wc.mu.Lock()
	wc.items[accommodationID] = wishlistID
	wc.saveLocked()
	wc.mu.Unlock()
}

func (wc *wishlistCache) remove(accommodationID int64) {
	wc.mu.Lock()
	delete(wc.items, accommodationID)
	wc.saveLocked()
	wc.mu.Unlock()
}

func (wc *wishlistCache) dropList(wishlistID int64) {
	wc.mu.Lock()
	for acc, list := range wc.items {
		if list == wishlistID {
			delete(wc.items, acc)
		}
	}
	wc.saveLocked()
	wc.mu.Unlock()
}

func (wc *wishlistCache) reset() {
	wc.mu.Lock()
	wc.items = map[int64]int64{}
	if err := wc.storage.Delete(db.WishlistKey); err != nil {
		wc.logger.Warn().Err(err).Msg("failed to clear wishlist cache")
	}
	wc.mu.Unlock()
}

func (wc *wishlistCache) saveLocked() {
	var st wishlistState
	st.State.Items = make(map[string]int64, len(wc.items))
	for k, v := range wc.items {
		st.State.Items[strconv.FormatInt(k, 10)] = v
	}
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := wc.storage.Set(db.WishlistKey, string(data)); err != nil {
		wc.logger.Warn().Err(err).Msg("failed to persist wishlist cache")
	}
}

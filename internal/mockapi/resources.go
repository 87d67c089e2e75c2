package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"staylink/internal/models"
)

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	keyword := strings.ToLower(q.Get("keyword"))
	region := q.Get("region")
	guests, _ := strconv.Atoi(q.Get("guests"))
	minPrice, _ := strconv.ParseInt(q.Get("minPrice"), 10, 64)
	maxPrice, _ := strconv.ParseInt(q.Get("maxPrice"), 10, 64)

	s.mu.Lock()
	var matches []models.Accommodation
	for _, acc := range s.accommodations {
		switch {
		case keyword != "" && !strings.Contains(strings.ToLower(acc.Name+" "+acc.Region), keyword):
			continue
		case region != "" && acc.Region != region:
			continue
		case guests > 0 && guests > acc.MaxGuests:
			continue
		case minPrice > 0 && acc.PricePerNight < minPrice:
			continue
		case maxPrice > 0 && acc.PricePerNight > maxPrice:
			continue
		}
		matches = append(matches, *acc)
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, paginate(matches, r, 20))
}

func (s *Server) accommodation(id int64) *models.Accommodation {
	for _, acc := range s.accommodations {
		if acc.ID == id {
			return acc
		}
	}
	return nil
}

func (s *Server) handleAccommodation(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid accommodation id")
		return
	}
	viewer := s.optionalUser(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accommodation(id)
	if acc == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "숙소를 찾을 수 없습니다.")
		return
	}
	out := *acc
	if u, ok := s.users[viewer]; ok {
		out.IsWishlisted = u.wishlisted(id)
		u.recent = append([]models.RecentView{{
			AccommodationID: acc.ID,
			Name:            acc.Name,
			ThumbnailURL:    acc.ThumbnailURL,
			PricePerNight:   acc.PricePerNight,
			ViewedAt:        time.Now().UTC(),
		}}, u.recent...)
		if len(u.recent) > 20 {
			u.recent = u.recent[:20]
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := paramID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid accommodation id")
		return
	}

	s.mu.Lock()
	var out []models.Review
	for i := len(s.reviews) - 1; i >= 0; i-- {
		if s.reviews[i].AccommodationID == id {
			out = append(out, *s.reviews[i])
		}
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, paginate(out, r, 10))
}

func (s *Server) handleChatbot(w http.ResponseWriter, r *http.Request) {
	var req models.ChatbotRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "질문을 입력해주세요.")
		return
	}
	respondJSON(w, http.StatusOK, models.ChatbotResponse{
		Answer: fmt.Sprintf("'%s'에 대해 안내해 드릴게요. 숙소 상세 페이지에서 편의시설과 환불 규정을 확인할 수 있습니다.", req.Question),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	respondJSON(w, http.StatusOK, s.users[currentUser(r)].profile)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.ProfileUpdateRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[currentUser(r)]
	if req.Nickname != "" {
		u.profile.Nickname = req.Nickname
	}
	if req.Phone != "" {
		u.profile.Phone = req.Phone
	}
	if req.Introduction != "" {
		u.profile.Introduction = req.Introduction
	}
	respondJSON(w, http.StatusOK, u.profile)
}

func (s *Server) handleRecentViews(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.RecentView{}, s.users[currentUser(r)].recent...)
	respondJSON(w, http.StatusOK, out)
}

func (u *user) wishlisted(accommodationID int64) bool {
	for _, wl := range u.wishlist {
		for _, id := range wl.items {
			if id == accommodationID {
				return true
			}
		}
	}
	return false
}

func (u *user) findWishlist(id int64) *wishlist {
	for _, wl := range u.wishlist {
		if wl.ID == id {
			return wl
		}
	}
	return nil
}

func (s *Server) handleWishlists(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Wishlist{}
	for _, wl := range s.users[currentUser(r)].wishlist {
		v := wl.Wishlist
		v.ItemCount = len(wl.items)
		out = append(out, v)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateWishlist(w http.ResponseWriter, r *http.Request) {
	var req models.CreateWishlistRequest
	if err := decode(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "위시리스트 이름을 입력해주세요.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[currentUser(r)]
	for _, wl := range u.wishlist {
		if wl.Name == req.Name {
			respondError(w, http.StatusConflict, "DUPLICATE_WISHLIST", "같은 이름의 위시리스트가 이미 있습니다.")
			return
		}
	}
	wl := &wishlist{Wishlist: models.Wishlist{ID: s.newID(), Name: req.Name}}
	u.wishlist = append(u.wishlist, wl)
	respondJSON(w, http.StatusCreated, wl.Wishlist)
}

func (s *Server) handleRenameWishlist(w http.ResponseWriter, r *http.Request) {
	id, _ := paramID(r, "id")
	var req models.CreateWishlistRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.users[currentUser(r)].findWishlist(id)
	if wl == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "위시리스트를 찾을 수 없습니다.")
		return
	}
	wl.Name = req.Name
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteWishlist(w http.ResponseWriter, r *http.Request) {
	id, _ := paramID(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[currentUser(r)]
	for i, wl := range u.wishlist {
		if wl.ID == id {
			u.wishlist = append(u.wishlist[:i], u.wishlist[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respondError(w, http.StatusNotFound, "NOT_FOUND", "위시리스트를 찾을 수 없습니다.")
}

func (s *Server) handleWishlistItems(w http.ResponseWriter, r *http.Request) {
	id, _ := paramID(r, "id")

	s.mu.Lock()
	wl := s.users[currentUser(r)].findWishlist(id)
	if wl == nil {
		s.mu.Unlock()
		respondError(w, http.StatusNotFound, "NOT_FOUND", "위시리스트를 찾을 수 없습니다.")
		return
	}
	var items []models.Accommodation
	for _, accID := range wl.items {
		if acc := s.accommodation(accID); acc != nil {
			items = append(items, *acc)
		}
	}
	s.mu.Unlock()

	respondJSON(w, http.StatusOK, paginate(items, r, 20))
}

func (s *Server) handleAddWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, _ := paramID(r, "id")
	var req models.WishlistItemRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[currentUser(r)]
	wl := u.findWishlist(id)
	if wl == nil || s.accommodation(req.AccommodationID) == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "위시리스트 또는 숙소를 찾을 수 없습니다.")
		return
	}
	if u.wishlisted(req.AccommodationID) {
		respondError(w, http.StatusConflict, "ALREADY_WISHLISTED", "이미 위시리스트에 저장된 숙소입니다.")
		return
	}
	wl.items = append(wl.items, req.AccommodationID)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveWishlistItem(w http.ResponseWriter, r *http.Request) {
	id, _ := paramID(r, "id")
	accID, _ := paramID(r, "accommodationId")

	s.mu.Lock()
	defer s.mu.Unlock()
	wl := s.users[currentUser(r)].findWishlist(id)
	if wl == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "위시리스트를 찾을 수 없습니다.")
		return
	}
	for i, item := range wl.items {
		if item == accID {
			wl.items = append(wl.items[:i], wl.items[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReservations(w http.ResponseWriter, r *http.Request) {
	userID := currentUser(r)

	s.mu.Lock()
	var out []models.Reservation
	for _, res := range s.reservations {
		if res.userID == userID {
			out = append(out, res.Reservation)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	respondJSON(w, http.StatusOK, paginate(out, r, 10))
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	in, errIn := time.Parse("2006-01-02", req.CheckIn)
	out, errOut := time.Parse("2006-01-02", req.CheckOut)
	if errIn != nil || errOut != nil || !out.After(in) {
		respondError(w, http.StatusBadRequest, "INVALID_DATES", "예약 날짜가 올바르지 않습니다.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accommodation(req.AccommodationID)
	if acc == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "숙소를 찾을 수 없습니다.")
		return
	}
	if req.Guests > acc.MaxGuests {
		respondError(w, http.StatusBadRequest, "TOO_MANY_GUESTS", fmt.Sprintf("최대 %d명까지 예약할 수 있습니다.", acc.MaxGuests))
		return
	}
	for _, res := range s.reservations {
		if res.AccommodationID == acc.ID && res.Status != "CANCELLED" && res.CheckIn < req.CheckOut && req.CheckIn < res.CheckOut {
			// Empty message so the client falls back to its canned conflict text.
			respondJSON(w, http.StatusConflict, models.ErrorBody{Status: http.StatusConflict, Code: "ALREADY_RESERVED"})
			return
		}
	}

	nights := int64(out.Sub(in).Hours() / 24)
	res := &reservation{
		userID: currentUser(r),
		Reservation: models.Reservation{
			ID:                s.newID(),
			AccommodationID:   acc.ID,
			AccommodationName: acc.Name,
			CheckIn:           req.CheckIn,
			CheckOut:          req.CheckOut,
			Guests:            req.Guests,
			TotalPrice:        nights * acc.PricePerNight,
			Status:            "PENDING",
			CreatedAt:         time.Now().UTC(),
		},
	}
	s.reservations[res.ID] = res
	respondJSON(w, http.StatusCreated, res.Reservation)
}

func (s *Server) ownReservation(r *http.Request) *reservation {
	id, _ := paramID(r, "id")
	res, ok := s.reservations[id]
	if !ok || res.userID != currentUser(r) {
		return nil
	}
	return res
}

func (s *Server) handleReservation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.ownReservation(r)
	if res == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "예약을 찾을 수 없습니다.")
		return
	}
	respondJSON(w, http.StatusOK, res.Reservation)
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.ownReservation(r)
	if res == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "예약을 찾을 수 없습니다.")
		return
	}
	res.Status = "CANCELLED"
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSavePayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentSaveRequest
	if err := decode(r, &req); err != nil || req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "주문 정보가 올바르지 않습니다.")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[req.OrderID] = &models.Payment{
		OrderID:       req.OrderID,
		ReservationID: req.ReservationID,
		Amount:        req.Amount,
		Status:        "READY",
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentConfirmRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[req.OrderID]
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "결제 정보를 찾을 수 없습니다.")
		return
	}
	// A tampered amount is rejected before approval.
	if p.Amount != req.Amount {
		respondError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "결제 금액이 일치하지 않습니다.")
		return
	}
	p.Status = "DONE"
	p.ApprovedAt = time.Now().UTC()
	if res, ok := s.reservations[p.ReservationID]; ok {
		res.Status = "CONFIRMED"
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accommodation(req.AccommodationID) == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "숙소를 찾을 수 없습니다.")
		return
	}
	u := s.users[currentUser(r)]
	rv := &models.Review{
		ID:              s.newID(),
		AccommodationID: req.AccommodationID,
		AuthorID:        u.id,
		AuthorName:      u.profile.Nickname,
		Rating:          req.Rating,
		Content:         req.Content,
		CreatedAt:       time.Now().UTC(),
	}
	s.reviews = append(s.reviews, rv)
	respondJSON(w, http.StatusCreated, rv)
}

func (s *Server) ownReview(r *http.Request) (int, *models.Review) {
	id, _ := paramID(r, "id")
	for i, rv := range s.reviews {
		if rv.ID == id {
			if rv.AuthorID != currentUser(r) {
				return i, nil
			}
			return i, rv
		}
	}
	return -1, nil
}

func (s *Server) handleUpdateReview(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	i, rv := s.ownReview(r)
	switch {
	case i < 0:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "리뷰를 찾을 수 없습니다.")
		return
	case rv == nil:
		respondError(w, http.StatusForbidden, "FORBIDDEN", "본인이 작성한 리뷰만 수정할 수 있습니다.")
		return
	}
	rv.Rating = req.Rating
	rv.Content = req.Content
	respondJSON(w, http.StatusOK, rv)
}

func (s *Server) handleDeleteReview(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, rv := s.ownReview(r)
	switch {
	case i < 0:
		respondError(w, http.StatusNotFound, "NOT_FOUND", "리뷰를 찾을 수 없습니다.")
		return
	case rv == nil:
		respondError(w, http.StatusForbidden, "FORBIDDEN", "본인이 작성한 리뷰만 삭제할 수 있습니다.")
		return
	}
	s.reviews = append(s.reviews[:i], s.reviews[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"staylink/internal/chat"
	"staylink/internal/db"
	"staylink/internal/mockapi"
	"staylink/internal/models"
	"staylink/internal/validate"
)

func startMock(t *testing.T, opts mockapi.Options) (*mockapi.Server, string) {
	t.Helper()
	opts.Logger = zerolog.Nop()
	mock := mockapi.New(opts)
	srv := httptest.NewServer(mock.Handler())
	t.Cleanup(srv.Close)
	return mock, srv.URL
}

func login(t *testing.T, c *Client) {
	t.Helper()
	out, err := c.Login(context.Background(), models.LoginRequest{Email: mockapi.GuestEmail, Password: mockapi.GuestPassword})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if out.UserID != mockapi.GuestID {
		t.Fatalf("Login() user = %q", out.UserID)
	}
}

func TestLoginStoresTokenAndRefreshUsesCookie(t *testing.T) {
	mock, url := startMock(t, mockapi.Options{})
	c, sess := newTestClient(t, url)

	login(t, c)
	if sess.Token() == "" {
		t.Fatal("no token after login")
	}
	id, ok := sess.Identity()
	if !ok || id.UserID != mockapi.GuestID || id.Name != mockapi.GuestName {
		t.Errorf("Identity() = %+v, %v", id, ok)
	}

	// Expire the access token; the refresh cookie from login must recover it.
	expired := mock.IssueToken(mockapi.GuestID, -time.Minute)
	sess.SetToken(expired)

	profile, err := c.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("GetProfile() error = %v", err)
	}
	if profile.UserID != mockapi.GuestID {
		t.Errorf("profile = %+v", profile)
	}
	if mock.RefreshCalls() != 1 {
		t.Errorf("refresh calls = %d, want 1", mock.RefreshCalls())
	}
	if tok := sess.Token(); tok == "" || tok == expired {
		t.Errorf("token not replaced after refresh")
	}
}

func TestLoginFailure(t *testing.T) {
	_, url := startMock(t, mockapi.Options{})
	c, sess := newTestClient(t, url)

	_, err := c.Login(context.Background(), models.LoginRequest{Email: mockapi.GuestEmail, Password: "wrong-pass1!"})
	apiErr, ok := AsError(err)
	if !ok || apiErr.Status != 401 || apiErr.Message != "이메일 또는 비밀번호가 올바르지 않습니다." {
		t.Fatalf("Login() error = %v", err)
	}
	if sess.Token() != "" {
		t.Errorf("token stored after failed login")
	}

	var fe *validate.FieldError
	if _, err := c.Login(context.Background(), models.LoginRequest{Email: "nope", Password: "x"}); !errors.As(err, &fe) {
		t.Errorf("Login() with bad email error = %v", err)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	mock, url := startMock(t, mockapi.Options{})
	c, sess := newTestClient(t, url)
	login(t, c)

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if sess.Token() != "" {
		t.Error("token kept after logout")
	}

	// The refresh cookie is gone too, so an expired token cannot be revived.
	sess.SetToken(mock.IssueToken(mockapi.GuestID, -time.Minute))
	if _, err := c.GetProfile(context.Background()); !errors.Is(err, ErrForcedLogout) {
		t.Errorf("GetProfile() error = %v, want ErrForcedLogout", err)
	}
}

func TestWishlistCache(t *testing.T) {
	_, url := startMock(t, mockapi.Options{})
	kv := newMemKV()
	c, _ := newTestClient(t, url, func(o *Options) { o.Storage = kv })
	login(t, c)
	ctx := context.Background()

	wl, err := c.CreateWishlist(ctx, "여름 휴가")
	if err != nil {
		t.Fatalf("CreateWishlist() error = %v", err)
	}
	if err := c.AddToWishlist(ctx, wl.ID, 2, ""); err != nil {
		t.Fatalf("AddToWishlist() error = %v", err)
	}
	if !c.IsWishlisted(2) {
		t.Error("IsWishlisted(2) = false after add")
	}
	if _, ok, _ := kv.Get(db.WishlistKey); !ok {
		t.Error("wishlist cache not persisted")
	}

	page, err := c.SearchAccommodations(ctx, models.SearchQuery{Region: "전주"})
	if err != nil {
		t.Fatalf("SearchAccommodations() error = %v", err)
	}
	if len(page.Contents) != 1 || !page.Contents[0].IsWishlisted {
		t.Errorf("search results = %+v", page.Contents)
	}

	// A second client over the same storage starts with the cache warm.
	c2, _ := newTestClient(t, url, func(o *Options) { o.Storage = kv })
	if !c2.IsWishlisted(2) {
		t.Error("cache not restored from storage")
	}

	if err := c.RemoveFromWishlist(ctx, wl.ID, 2); err != nil {
		t.Fatalf("RemoveFromWishlist() error = %v", err)
	}
	if c.IsWishlisted(2) {
		t.Error("IsWishlisted(2) = true after remove")
	}

	if _, err := c.CreateWishlist(ctx, "여름 휴가"); err == nil {
		t.Error("duplicate wishlist accepted")
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := kv.Get(db.WishlistKey); ok {
		t.Error("wishlist cache survived logout")
	}
}

func TestReservationAndPayment(t *testing.T) {
	_, url := startMock(t, mockapi.Options{})
	c, _ := newTestClient(t, url)
	login(t, c)
	ctx := context.Background()

	checkIn := time.Now().AddDate(0, 0, 10).Format(validate.DateLayout)
	checkOut := time.Now().AddDate(0, 0, 12).Format(validate.DateLayout)
	req := models.ReservationRequest{AccommodationID: 1, CheckIn: checkIn, CheckOut: checkOut, Guests: 2, Phone: "010-1234-5678"}

	res, err := c.CreateReservation(ctx, req)
	if err != nil {
		t.Fatalf("CreateReservation() error = %v", err)
	}
	if res.TotalPrice != 240000 || res.Status != "PENDING" {
		t.Errorf("reservation = %+v", res)
	}

	// The overlapping stay is rejected with the canned conflict message.
	_, err = c.CreateReservation(ctx, req)
	if apiErr, ok := AsError(err); !ok || apiErr.Status != 409 || apiErr.Message != msgConflict {
		t.Errorf("second CreateReservation() error = %v", err)
	}

	orderID := "order-" + strconv.FormatInt(res.ID, 10)
	if err := c.SavePayment(ctx, models.PaymentSaveRequest{OrderID: orderID, Amount: res.TotalPrice, ReservationID: res.ID}); err != nil {
		t.Fatalf("SavePayment() error = %v", err)
	}
	if _, err := c.ConfirmPayment(ctx, models.PaymentConfirmRequest{PaymentKey: "pk", OrderID: orderID, Amount: 1, ReservationID: res.ID}); err == nil {
		t.Error("ConfirmPayment() accepted a tampered amount")
	}
	payment, err := c.ConfirmPayment(ctx, models.PaymentConfirmRequest{PaymentKey: "pk", OrderID: orderID, Amount: res.TotalPrice, ReservationID: res.ID})
	if err != nil {
		t.Fatalf("ConfirmPayment() error = %v", err)
	}
	if payment.Status != "DONE" {
		t.Errorf("payment = %+v", payment)
	}

	got, err := c.GetReservation(ctx, res.ID)
	if err != nil || got.Status != "CONFIRMED" {
		t.Errorf("GetReservation() = %+v, %v", got, err)
	}
	list, err := c.ListReservations(ctx, 1, 10)
	if err != nil || list.TotalElements != 1 {
		t.Errorf("ListReservations() = %+v, %v", list, err)
	}
}

func TestValidationStopsRequests(t *testing.T) {
	_, url := startMock(t, mockapi.Options{})
	c, _ := newTestClient(t, url)
	login(t, c)
	ctx := context.Background()

	tomorrow := time.Now().AddDate(0, 0, 1).Format(validate.DateLayout)
	later := time.Now().AddDate(0, 0, 3).Format(validate.DateLayout)

	tests := []struct {
		name  string
		call  func() error
		field string
	}{
		{"bad phone", func() error {
			_, err := c.CreateReservation(ctx, models.ReservationRequest{AccommodationID: 1, CheckIn: tomorrow, CheckOut: later, Guests: 2, Phone: "123"})
			return err
		}, "phone"},
		{"reversed dates", func() error {
			_, err := c.CreateReservation(ctx, models.ReservationRequest{AccommodationID: 1, CheckIn: later, CheckOut: tomorrow, Guests: 2, Phone: "01012345678"})
			return err
		}, "checkOut"},
		{"short review", func() error {
			_, err := c.CreateReview(ctx, models.ReviewRequest{AccommodationID: 1, Rating: 5, Content: "좋아요"})
			return err
		}, "content"},
		{"bad rating", func() error {
			_, err := c.CreateReview(ctx, models.ReviewRequest{AccommodationID: 1, Rating: 0, Content: "정말 좋은 숙소였습니다. 추천해요!"})
			return err
		}, "rating"},
		{"blank wishlist", func() error {
			_, err := c.CreateWishlist(ctx, " ")
			return err
		}, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fe *validate.FieldError
			if err := tt.call(); !errors.As(err, &fe) || fe.Field != tt.field {
				t.Errorf("error = %v, want field %s", err, tt.field)
			}
		})
	}
}

func TestReviewsAndRecentViews(t *testing.T) {
	_, url := startMock(t, mockapi.Options{})
	c, _ := newTestClient(t, url)
	login(t, c)
	ctx := context.Background()

	rv, err := c.CreateReview(ctx, models.ReviewRequest{AccommodationID: 3, Rating: 4, Content: "위치가 좋고 깨끗했어요. 다시 올게요."})
	if err != nil {
		t.Fatalf("CreateReview() error = %v", err)
	}
	reviews, err := c.ListReviews(ctx, 3, 1, 10)
	if err != nil || len(reviews.Contents) != 1 || reviews.Contents[0].ID != rv.ID {
		t.Errorf("ListReviews() = %+v, %v", reviews, err)
	}
	if err := c.DeleteReview(ctx, rv.ID); err != nil {
		t.Errorf("DeleteReview() error = %v", err)
	}

	if _, err := c.GetAccommodation(ctx, 4); err != nil {
		t.Fatalf("GetAccommodation() error = %v", err)
	}
	views, err := c.RecentViews(ctx)
	if err != nil || len(views) != 1 || views[0].AccommodationID != 4 {
		t.Errorf("RecentViews() = %+v, %v", views, err)
	}

	answer, err := c.AskChatbot(ctx, "반려동물 동반 가능한가요?")
	if err != nil || answer == "" {
		t.Errorf("AskChatbot() = %q, %v", answer, err)
	}
}

func TestChatHistoryPaging(t *testing.T) {
	mock, url := startMock(t, mockapi.Options{})
	c, sess := newTestClient(t, url)
	login(t, c)
	ctx := context.Background()

	room, err := c.StartChat(ctx, models.StartChatRequest{CounterpartID: mockapi.HostID})
	if err != nil {
		t.Fatalf("StartChat() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		sender := mockapi.HostID
		if i%2 == 0 {
			sender = mockapi.GuestID
		}
		mock.Post(room.RoomID, sender, "message "+strconv.Itoa(i))
		time.Sleep(2 * time.Millisecond)
	}

	selfID := func() string {
		id, _ := sess.Identity()
		return id.UserID
	}
	store := chat.NewStore(c, selfID, 2, zerolog.Nop())
	store.SetActiveRoom(room.RoomID)

	var added []int
	for store.HasMore(room.RoomID) {
		n, err := store.LoadMoreMessages(ctx, room.RoomID)
		if err != nil {
			t.Fatalf("LoadMoreMessages() error = %v", err)
		}
		added = append(added, n)
		if len(added) > 5 {
			t.Fatal("paging never ended")
		}
	}
	if len(added) != 3 || added[0] != 2 || added[1] != 2 || added[2] != 1 {
		t.Errorf("pages added %v, want [2 2 1]", added)
	}

	msgs := store.Messages(room.RoomID)
	for i, m := range msgs {
		if m.Content != "message "+strconv.Itoa(i) {
			t.Errorf("msgs[%d] = %q", i, m.Content)
		}
		if m.IsMine != (i%2 == 0) {
			t.Errorf("msgs[%d].IsMine = %v", i, m.IsMine)
		}
	}

	rooms, err := c.ListChatRooms(ctx)
	if err != nil || len(rooms) != 1 || rooms[0].UnreadCount != 2 {
		t.Fatalf("ListChatRooms() = %+v, %v", rooms, err)
	}
	if err := c.MarkRoomRead(ctx, room.RoomID); err != nil {
		t.Fatal(err)
	}
	rooms, _ = c.ListChatRooms(ctx)
	if rooms[0].UnreadCount != 0 {
		t.Errorf("UnreadCount = %d after MarkRoomRead", rooms[0].UnreadCount)
	}
}

package models

import "time"

type ChatRoom struct {
	RoomID               string    `json:"roomId"`
	CounterpartID        string    `json:"counterpartId"`
	CounterpartName      string    `json:"counterpartName"`
	CounterpartAvatar    string    `json:"counterpartAvatar,omitempty"`
	LastMessage          string    `json:"lastMessage"`
	LastMessageTimestamp time.Time `json:"lastMessageTimestamp"`
	UnreadCount          int       `json:"unreadCount"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsMine     bool      `json:"-"`
	// Pending marks a locally composed copy awaiting the server echo.
	Pending bool `json:"-"`
}

// ChatEnvelope is the payload published to /app/chat/{roomId}.
type ChatEnvelope struct {
	RoomID     string `json:"roomId"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

type StartChatRequest struct {
	CounterpartID   string `json:"counterpartId"`
	AccommodationID int64  `json:"accommodationId,omitempty"`
}

// Page is the page-number/page-size response envelope used by every list endpoint.
type Page[T any] struct {
	Contents      []T   `json:"contents"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
	TotalPage     int   `json:"totalPage"`
	TotalElements int64 `json:"totalElements"`
	HasPrev       bool  `json:"hasPrev"`
	HasNext       bool  `json:"hasNext"`
}

// ErrorBody is the JSON shape of a failed API response.
type ErrorBody struct {
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Auth
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// Accommodations
type Accommodation struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Category      string   `json:"category"`
	Address       string   `json:"address"`
	Region        string   `json:"region"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
	PricePerNight int64    `json:"pricePerNight"`
	MaxGuests     int      `json:"maxGuests"`
	Rating        float64  `json:"rating"`
	ReviewCount   int      `json:"reviewCount"`
	ThumbnailURL  string   `json:"thumbnailUrl,omitempty"`
	ImageURLs     []string `json:"imageUrls,omitempty"`
	Amenities     []string `json:"amenities,omitempty"`
	Description   string   `json:"description,omitempty"`
	HostID        string   `json:"hostId,omitempty"`
	HostName      string   `json:"hostName,omitempty"`
	IsWishlisted  bool     `json:"isWishlisted"`
}

type SearchQuery struct {
	Keyword  string
	Region   string
	CheckIn  string // YYYY-MM-DD
	CheckOut string
	Guests   int
	MinPrice int64
	MaxPrice int64
	Page     int
	Size     int
}

// Wishlists
type Wishlist struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ItemCount    int    `json:"itemCount"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

type CreateWishlistRequest struct {
	Name string `json:"name"`
}

type WishlistItemRequest struct {
	AccommodationID int64  `json:"accommodationId"`
	Memo            string `json:"memo,omitempty"`
}

// Reservations
type Reservation struct {
	ID                int64     `json:"id"`
	AccommodationID   int64     `json:"accommodationId"`
	AccommodationName string    `json:"accommodationName"`
	CheckIn           string    `json:"checkIn"`
	CheckOut          string    `json:"checkOut"`
	Guests            int       `json:"guests"`
	TotalPrice        int64     `json:"totalPrice"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
}

type ReservationRequest struct {
	AccommodationID int64  `json:"accommodationId"`
	CheckIn         string `json:"checkIn"`
	CheckOut        string `json:"checkOut"`
	Guests          int    `json:"guests"`
	Phone           string `json:"phone"`
}

// Payments
type PaymentConfirmRequest struct {
	PaymentKey    string `json:"paymentKey"`
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	ReservationID int64  `json:"reservationId"`
}

type PaymentSaveRequest struct {
	OrderID       string `json:"orderId"`
	Amount        int64  `json:"amount"`
	ReservationID int64  `json:"reservationId"`
}

type Payment struct {
	OrderID       string    `json:"orderId"`
	ReservationID int64     `json:"reservationId"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	ApprovedAt    time.Time `json:"approvedAt,omitempty"`
}

// Reviews
type Review struct {
	ID              int64     `json:"id"`
	AccommodationID int64     `json:"accommodationId"`
	AuthorID        string    `json:"authorId"`
	AuthorName      string    `json:"authorName"`
	Rating          int       `json:"rating"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
}

type ReviewRequest struct {
	AccommodationID int64  `json:"accommodationId,omitempty"`
	ReservationID   int64  `json:"reservationId,omitempty"`
	Rating          int    `json:"rating"`
	Content         string `json:"content"`
}

// Profile
type Profile struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	Nickname     string `json:"nickname"`
	Phone        string `json:"phone,omitempty"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Introduction string `json:"introduction,omitempty"`
}

type ProfileUpdateRequest struct {
	Nickname     string `json:"nickname,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Introduction string `json:"introduction,omitempty"`
}

// Recent views
type RecentView struct {
	AccommodationID int64     `json:"accommodationId"`
	Name            string    `json:"name"`
	ThumbnailURL    string    `json:"thumbnailUrl,omitempty"`
	PricePerNight   int64     `json:"pricePerNight"`
	ViewedAt        time.Time `json:"viewedAt"`
}

// Support chatbot
type ChatbotRequest struct {
	Question string `json:"question"`
}

type ChatbotResponse struct {
	Answer string `json:"answer"`
}

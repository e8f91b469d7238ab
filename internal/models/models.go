package models

import (
	"time"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"type:varchar(255)"        json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null;default:user"    json:"role"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(25)"         json:"name"`
}

type Listing struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"    json:"id"`
	Title       string    `gorm:"type:varchar(64);not null"   json:"title"`
	Description string    `gorm:"type:varchar(450)"           json:"description"`
	Price       float64   `gorm:"not null"                    json:"price"`
	Image       string    `json:"image"`
	Date        time.Time `gorm:"index"                       json:"date"`
	ActualBid   float64   `gorm:"not null;default:0"          json:"actual_bid"`
	OnSale      bool      `gorm:"default:true"                json:"on_sale"`
	OwnerID     uint      `gorm:"index;not null"              json:"owner_id"`
	CategoryID  uint      `gorm:"index;not null"              json:"category_id"`
	Category    Category  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

type Bid struct {
	ID        uint      `gorm:"primaryKey"     json:"id"`
	Amount    float64   `gorm:"not null"       json:"amount"`
	BuyerID   uint      `gorm:"index;not null" json:"buyer_id"`
	ListingID uint      `gorm:"index;not null" json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Comment struct {
	ID        uint      `gorm:"primaryKey"        json:"id"`
	Text      string    `gorm:"type:varchar(250)" json:"text"`
	Date      time.Time `gorm:"index"             json:"date"`
	UserID    uint      `gorm:"index;not null"    json:"user_id"`
	ListingID uint      `gorm:"index;not null"    json:"listing_id"`
}

// One row per (user, listing) pair, enforced by the unique index.
type WatchlistItem struct {
	ID        uint `gorm:"primaryKey"                               json:"id"`
	UserID    uint `gorm:"uniqueIndex:idx_watch_user_item;not null" json:"user_id"`
	ListingID uint `gorm:"uniqueIndex:idx_watch_user_item;not null" json:"listing_id"`
}

type RefreshToken struct {
	ID        uint   `gorm:"primaryKey"      json:"id"`
	Token     string `gorm:"unique;not null" json:"token"`
	UserID    uint   `gorm:"index;not null"  json:"user_id"`
	ExpiresAt int64  `gorm:"not null"        json:"expires_at"`
	Revoked   bool   `gorm:"default:false"   json:"revoked"`
}

package watchlist

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/models"
	"github.com/nrezzano/web_auctions/internal/mykafka"
)

type WatchlistHandler struct {
	DB        *gorm.DB
	Producer  *mykafka.Producer
	JWTSecret []byte
}

// GetWatchlist returns the listings the current user watches.
func (h *WatchlistHandler) GetWatchlist(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	var items []models.Listing
	if err := h.DB.
		Joins("JOIN watchlist_items ON watchlist_items.listing_id = listings.id").
		Where("watchlist_items.user_id = ?", userID).
		Order("listings.date DESC").
		Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, items)
}

// Add puts a listing on the current user's watchlist. Adding an item that is
// already watched changes nothing and says so.
func (h *WatchlistHandler) Add(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	listingID, err := pathListingID(c)
	if err != nil {
		return err
	}

	var listing models.Listing
	if err := h.DB.First(&listing, listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "listing not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var existing models.WatchlistItem
	tx := h.DB.Where("user_id = ? AND listing_id = ?", userID, listingID).First(&existing)
	if tx.Error == nil {
		return c.JSON(http.StatusOK, echo.Map{
			"message": listing.Title + " was already added!",
			"item":    existing,
		})
	}
	if !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, tx.Error.Error())
	}

	item := models.WatchlistItem{UserID: userID, ListingID: listingID}
	if err := h.DB.Create(&item).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.publish(c, userID, map[string]interface{}{
		"type":      "watchlist_added",
		"userID":    userID,
		"listingID": listingID,
	})

	return c.JSON(http.StatusCreated, item)
}

// Remove deletes the current user's watchlist row for a listing. Other users'
// rows for the same listing are untouched.
func (h *WatchlistHandler) Remove(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	listingID, err := pathListingID(c)
	if err != nil {
		return err
	}

	result := h.DB.
		Where("user_id = ? AND listing_id = ?", userID, listingID).
		Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "not on your watchlist")
	}

	h.publish(c, userID, map[string]interface{}{
		"type":      "watchlist_removed",
		"userID":    userID,
		"listingID": listingID,
	})

	return c.JSON(http.StatusOK, echo.Map{"removed": listingID})
}

func pathListingID(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/es"
	"github.com/nrezzano/web_auctions/internal/logging"
	"github.com/nrezzano/web_auctions/internal/models"
	"github.com/nrezzano/web_auctions/internal/mykafka"
	"github.com/nrezzano/web_auctions/internal/upload"
	"github.com/nrezzano/web_auctions/internal/util"
)

var errBidTooLow = errors.New("bid too low")

type ListingHandler struct {
	DB        *gorm.DB
	Producer  *mykafka.Producer
	JWTSecret []byte
	ES        *elasticsearch.Client
	ESIndex   string
	Uploads   *upload.Store
	Validate  *validator.Validate
}

type listingDetail struct {
	Listing    models.Listing   `json:"listing"`
	Comments   []models.Comment `json:"comments"`
	HighestBid *models.Bid      `json:"highest_bid,omitempty"`
	Logged     bool             `json:"logged"`
	Owner      bool             `json:"owner"`
	Watched    bool             `json:"watched"`
}

func (h *ListingHandler) publish(c echo.Context, topic, key string, event map[string]interface{}) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}
}

func (h *ListingHandler) index(c echo.Context, l models.Listing) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := es.IndexListing(ctx, h.ES, h.ESIndex, l); err != nil {
		logging.FromContext(c.Request().Context()).Error("es index failed", "listing", l.ID, "error", err)
	}
}

func (h *ListingHandler) deindex(c echo.Context, id uint) {
	if h.ES == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := es.DeleteListing(ctx, h.ES, h.ESIndex, id); err != nil {
		logging.FromContext(c.Request().Context()).Error("es delete failed", "listing", id, "error", err)
	}
}

// GetListings returns the items currently on sale, newest first.
func (h *ListingHandler) GetListings(c echo.Context) error {
	return h.listPage(c, true)
}

// GetAllListings returns every item regardless of sale state.
func (h *ListingHandler) GetAllListings(c echo.Context) error {
	return h.listPage(c, false)
}

func (h *ListingHandler) listPage(c echo.Context, onSaleOnly bool) error {
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	scope := func() *gorm.DB {
		q := h.DB.Model(&models.Listing{})
		if onSaleOnly {
			q = q.Where("on_sale = ?", true)
		}
		return q
	}

	var total int64
	if err := scope().Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var items []models.Listing
	if err := scope().
		Order("date DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

// GetListing serves the detail page payload. An anonymous request gets the
// listing, comments and highest bid; a logged-in one also gets the owner and
// watchlist flags the client uses to decide which forms to show.
func (h *ListingHandler) GetListing(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var listing models.Listing
	if err := h.DB.First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "listing not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	detail := listingDetail{Listing: listing}

	if err := h.DB.Where("listing_id = ?", id).Order("date DESC").Find(&detail.Comments).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	var highest models.Bid
	if err := h.DB.Where("listing_id = ?", id).Order("id DESC").First(&highest).Error; err == nil {
		detail.HighestBid = &highest
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if userID, ok := optionalID(c, h.JWTSecret); ok {
		detail.Logged = true
		detail.Owner = listing.OwnerID == userID

		var watch models.WatchlistItem
		err := h.DB.Where("user_id = ? AND listing_id = ?", userID, id).First(&watch).Error
		detail.Watched = err == nil
	}

	return c.JSON(http.StatusOK, detail)
}

type createListingRequest struct {
	Title       string  `validate:"required,max=64"`
	Description string  `validate:"required,max=450"`
	Price       float64 `validate:"required,gt=0,lt=1000"`
	CategoryID  uint    `validate:"required"`
}

// CreateListing accepts a multipart form: title, description, price,
// category_id and an image file.
func (h *ListingHandler) CreateListing(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	price, _ := strconv.ParseFloat(c.FormValue("price"), 64)
	categoryID := uint(parseIntDefault(c.FormValue("category_id"), 0))

	req := createListingRequest{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Price:       price,
		CategoryID:  categoryID,
	}
	if err := h.Validate.Struct(req); err != nil {
		fields := map[string]string{}
		for _, e := range err.(validator.ValidationErrors) {
			fields[e.Field()] = fmt.Sprintf("failed on the '%s' rule", e.Tag())
		}
		return c.JSON(http.StatusBadRequest, echo.Map{
			"message": "Validation failed",
			"errors":  fields,
		})
	}

	var category models.Category
	if err := h.DB.First(&category, req.CategoryID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown category")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "image file is required")
	}
	image, err := h.Uploads.Save(fh)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	listing := models.Listing{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Image:       image,
		Date:        time.Now(),
		ActualBid:   0,
		OnSale:      true,
		OwnerID:     userID,
		CategoryID:  req.CategoryID,
	}
	if err := h.DB.Create(&listing).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.index(c, listing)
	h.publish(c, "listing_events", fmt.Sprint(listing.ID), map[string]interface{}{
		"type":      "listing_created",
		"listingID": listing.ID,
		"ownerID":   userID,
		"title":     listing.Title,
	})

	return c.JSON(http.StatusCreated, listing)
}

type placeBidRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0,lt=1000"`
}

// PlaceBid accepts an offer when it beats both the asking price and the
// current highest bid. The check and the actual_bid update run as one
// conditional UPDATE inside a transaction, so two racing bidders cannot both
// win.
func (h *ListingHandler) PlaceBid(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := pathID(c)
	if err != nil {
		return err
	}

	var listing models.Listing
	if err := h.DB.First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "listing not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if listing.OwnerID == userID {
		return echo.NewHTTPError(http.StatusForbidden, "you cannot bid on your own listing")
	}
	if !listing.OnSale {
		return echo.NewHTTPError(http.StatusBadRequest, "listing is no longer on sale")
	}

	var req placeBidRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be between 0 and 1000")
	}

	var bid models.Bid
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Listing{}).
			Where("id = ? AND actual_bid < ? AND price < ? AND on_sale = ?", id, req.Amount, req.Amount, true).
			Update("actual_bid", req.Amount)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errBidTooLow
		}

		bid = models.Bid{
			Amount:    req.Amount,
			BuyerID:   userID,
			ListingID: id,
			CreatedAt: time.Now(),
		}
		return tx.Create(&bid).Error
	})
	if errors.Is(txErr, errBidTooLow) {
		return echo.NewHTTPError(http.StatusBadRequest, formatAmount(req.Amount)+" € ISN'T ENOUGH!")
	}
	if txErr != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, txErr.Error())
	}

	h.publish(c, "bid_events", fmt.Sprint(id), map[string]interface{}{
		"type":      "bid_placed",
		"listingID": id,
		"buyerID":   userID,
		"amount":    req.Amount,
	})

	return c.JSON(http.StatusOK, bid)
}

// Sell takes a listing off sale. Only the owner may do this and there is no
// way back through the API.
func (h *ListingHandler) Sell(c echo.Context) error {
	userID, err := GetID(c, h.JWTSecret)
	if err != nil {
		return err
	}

	id, err := pathID(c)
	if err != nil {
		return err
	}

	var listing models.Listing
	if err := h.DB.First(&listing, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "listing not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if listing.OwnerID != userID {
		return echo.NewHTTPError(http.StatusForbidden, "you do not own this listing")
	}

	if err := h.DB.Model(&listing).Update("on_sale", false).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	listing.OnSale = false

	h.deindex(c, id)
	h.publish(c, "listing_events", fmt.Sprint(id), map[string]interface{}{
		"type":      "listing_sold",
		"listingID": id,
		"ownerID":   userID,
	})

	return c.JSON(http.StatusOK, listing)
}

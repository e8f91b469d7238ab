package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/logging"
	"github.com/nrezzano/web_auctions/internal/models"
	"github.com/nrezzano/web_auctions/internal/mykafka"
)

type CommentHandler struct {
	DB        *gorm.DB
	Producer  *mykafka.Producer
	JWTSecret []byte
	Validate  *validator.Validate
}

type addCommentRequest struct {
	Text string `json:"text" validate:"required,max=250"`
}

// AddComment appends a comment to a listing. Comments are never edited or
// deleted.
func (h *CommentHandler) AddComment(c echo.Context) error {
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

	var req addCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "comment must be 1-250 characters")
	}

	comment := models.Comment{
		Text:      req.Text,
		Date:      time.Now(),
		UserID:    userID,
		ListingID: id,
	}
	if err := h.DB.Create(&comment).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "listing_events", fmt.Sprint(id), map[string]interface{}{
		"type":      "comment_added",
		"listingID": id,
		"userID":    userID,
	}); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish failed", "error", err)
	}

	return c.JSON(http.StatusCreated, comment)
}

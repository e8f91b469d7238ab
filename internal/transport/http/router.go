package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nrezzano/web_auctions/internal/handlers"
	"github.com/nrezzano/web_auctions/internal/handlers/watchlist"
	"github.com/nrezzano/web_auctions/internal/service/token"
)

type Deps struct {
	DB               *gorm.DB
	AuthHandler      *handlers.AuthHandler
	ListingHandler   *handlers.ListingHandler
	CommentHandler   *handlers.CommentHandler
	CategoryHandler  *handlers.CategoryHandler
	WatchlistHandler *watchlist.WatchlistHandler
	SearchHandler    *handlers.SearchHandler
	TokenService     *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)

	v1.GET("/search", d.SearchHandler.Search)

	listings := v1.Group("/listings")
	listings.GET("", d.ListingHandler.GetListings)
	listings.GET("/all", d.ListingHandler.GetAllListings)
	listings.GET("/:id", d.ListingHandler.GetListing)

	authed := v1.Group("", d.TokenService.AutoRefreshMiddleware)
	authed.POST("/listings", d.ListingHandler.CreateListing)
	authed.POST("/listings/:id/bid", d.ListingHandler.PlaceBid)
	authed.POST("/listings/:id/sell", d.ListingHandler.Sell)
	authed.POST("/listings/:id/comments", d.CommentHandler.AddComment)

	authed.GET("/watchlist", d.WatchlistHandler.GetWatchlist)
	authed.POST("/watchlist/:id", d.WatchlistHandler.Add)
	authed.DELETE("/watchlist/:id", d.WatchlistHandler.Remove)

	v1.GET("/categories", d.CategoryHandler.GetCategories)
	v1.GET("/categories/:id/listings", d.CategoryHandler.GetCategoryListings)

	admin := v1.Group("/admin", d.TokenService.AutoRefreshMiddlewareAdmin)
	admin.POST("/categories", d.CategoryHandler.CreateCategory)
}

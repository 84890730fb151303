package api

import (
	"github.com/gin-contrib/cors"
	"github.com/wb-go/wbf/ginext"

	"giveaway/cmd/middleware"
	"giveaway/internal/auth"
	"giveaway/internal/service"
	"giveaway/internal/storage"
)

type Routers struct {
	Service    service.Service
	AuthSecret []byte
	UploadDir  string
}

func NewRouters(r *Routers) *ginext.Engine {
	app := ginext.New("release")
	app.MaxMultipartMemory = storage.MaxUploadBytes

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	app.GET("/", r.Service.Index)
	app.GET("/giveaway/:id", r.Service.GetGiveaway)
	app.POST("/giveaway/:id", r.Service.SubmitEntry)
	app.GET("/confirmation/:id", r.Service.Confirmation)

	app.GET("/admin/login", r.Service.LoginPage)
	app.POST("/admin/login", r.Service.Login)
	app.GET("/admin/logout", r.Service.Logout)

	adminGroup := app.Group("/admin", auth.RequireAdmin(r.AuthSecret))
	adminGroup.GET("/dashboard", r.Service.Dashboard)
	adminGroup.GET("/giveaway/add", r.Service.NewGiveawayForm)
	adminGroup.POST("/giveaway/add", r.Service.AddGiveaway)
	adminGroup.GET("/giveaway/:id/edit", r.Service.EditGiveawayForm)
	adminGroup.POST("/giveaway/:id/edit", r.Service.EditGiveaway)
	adminGroup.POST("/giveaway/:id/delete", r.Service.DeleteGiveaway)
	adminGroup.GET("/giveaway/:id/entries", r.Service.ListEntries)
	adminGroup.POST("/entry/:id/delete", r.Service.DeleteEntry)

	app.Static("/static/uploads", r.UploadDir)
	app.Static("/static/img", "./static/img")

	return app
}

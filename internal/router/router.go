package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/agency-portal/internal/config"
	"github.com/iliyamo/agency-portal/internal/handler"
	"github.com/iliyamo/agency-portal/internal/middleware"
	"github.com/iliyamo/agency-portal/internal/model"
	"github.com/iliyamo/agency-portal/internal/repository"
	"github.com/iliyamo/agency-portal/internal/service"
	"github.com/iliyamo/agency-portal/internal/storage"
)

// Handlers groups everything the routes dispatch to.
type Handlers struct {
	Auth     *handler.AuthHandler
	Projects *handler.ProjectHandler
	Messages *handler.MessageHandler
	Files    *handler.FileHandler
	Activity *handler.ActivityHandler
	Public   *handler.PublicHandler
}

// Options carries the cross-cutting dependencies of the route groups.
type Options struct {
	JWTSecret string
	Users     *repository.UserRepo
	Redis     *redis.Client // nil disables rate limiting
	DB        *sql.DB       // pinged by /healthz
	UploadDir string        // served under /uploads
}

// Register mounts every route on e. All API routes live under /api.
func Register(e *echo.Echo, h Handlers, opt Options) {
	e.GET("/healthz", handler.Health(opt.DB))
	if opt.UploadDir != "" {
		e.Static("/uploads", opt.UploadDir)
	}

	api := e.Group("/api")
	registerPublic(api, h.Public, opt)
	registerAuth(api, h.Auth, opt)
	registerPortal(api, h, opt)
}

// registerPublic mounts the marketing forms behind the shared token bucket.
func registerPublic(api *echo.Group, p *handler.PublicHandler, opt Options) {
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig("public", 5, 12*time.Second), opt.Redis)
	g := api.Group("/public", limit)
	g.POST("/contact", p.Contact)
	g.POST("/subscribe", p.Subscribe)
	g.POST("/work-with-us", p.WorkWithUs)
}

// registerAuth mounts the credential endpoints. signup/login/refresh/logout
// need no session; me needs any role; client administration is admin-only.
func registerAuth(api *echo.Group, a *handler.AuthHandler, opt Options) {
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig("auth", 10, 6*time.Second), opt.Redis)
	g := api.Group("/auth")
	g.POST("/signup", a.Signup, limit)
	g.POST("/login", a.Login, limit)
	g.POST("/refresh", a.Refresh, limit)
	g.POST("/logout", a.Logout)

	authed := middleware.JWTAuth(opt.JWTSecret, opt.Users)
	g.GET("/me", a.Me, authed, middleware.RequireRole(model.RoleClient, model.RoleAdmin))

	admin := g.Group("/clients", authed, middleware.RequireRole(model.RoleAdmin))
	admin.GET("", a.ListClients)
	admin.PATCH("/:id/deactivate", a.DeactivateClient)
}

// registerPortal mounts the collections the dashboard polls. Ownership of
// individual projects is checked inside the handlers.
func registerPortal(api *echo.Group, h Handlers, opt Options) {
	authed := middleware.JWTAuth(opt.JWTSecret, opt.Users)
	anyRole := middleware.RequireRole(model.RoleClient, model.RoleAdmin)
	adminOnly := middleware.RequireRole(model.RoleAdmin)

	g := api.Group("", authed, anyRole)
	g.GET("/projects", h.Projects.List)
	g.POST("/projects", h.Projects.Create, adminOnly)
	g.PATCH("/projects/:id", h.Projects.Update, adminOnly)

	g.GET("/messages/:projectId", h.Messages.List)
	g.POST("/messages", h.Messages.Create)
	g.POST("/messages/broadcast", h.Messages.Broadcast, adminOnly)

	g.GET("/files/:projectId", h.Files.List)
	g.POST("/files", h.Files.Create)
	g.POST("/files/upload", h.Files.Upload)

	g.GET("/activity", h.Activity.List, adminOnly)
}

// New builds the complete API on db: repositories, handlers, middleware and
// routes. pub may be nil (no broker); rdb may be nil (no rate limiting).
func New(cfg config.Config, db *sql.DB, rdb *redis.Client, pub service.Publisher) (*echo.Echo, *handler.AuthHandler, error) {
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	projects := repository.NewProjectRepo(db)
	messages := repository.NewMessageRepo(db)
	files := repository.NewFileRepo(db)
	activityRepo := repository.NewActivityRepo(db)
	forms := repository.NewFormRepo(db)
	activity := service.NewActivityRecorder(activityRepo, pub)

	baseURL := cfg.PublicBaseURL + "/uploads"
	store, err := storage.NewLocalStore(cfg.UploadDir, baseURL, 0)
	if err != nil {
		return nil, nil, err
	}
	public, err := handler.NewPublicHandler(forms, activity, service.NewMailer(cfg.SMTP))
	if err != nil {
		return nil, nil, err
	}

	auth := handler.NewAuthHandler(cfg, users, tokens, activity)
	h := Handlers{
		Auth:     auth,
		Projects: handler.NewProjectHandler(projects, users, messages, activity),
		Messages: handler.NewMessageHandler(projects, messages, activity),
		Files:    handler.NewFileHandler(projects, files, messages, activity, store),
		Activity: handler.NewActivityHandler(activityRepo),
		Public:   public,
	}

	e := echo.New()
	e.HideBanner = true
	Register(e, h, Options{
		JWTSecret: cfg.JWTSecret,
		Users:     users,
		Redis:     rdb,
		DB:        db,
		UploadDir: cfg.UploadDir,
	})
	return e, auth, nil
}

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/nikhilbhutani/toolate/internal/api/handlers"
	"github.com/nikhilbhutani/toolate/internal/api/middleware"
	"github.com/nikhilbhutani/toolate/internal/audit"
	"github.com/nikhilbhutani/toolate/internal/auth"
	"github.com/nikhilbhutani/toolate/internal/branch"
	"github.com/nikhilbhutani/toolate/internal/cache"
	"github.com/nikhilbhutani/toolate/internal/config"
	"github.com/nikhilbhutani/toolate/internal/identity"
	"github.com/nikhilbhutani/toolate/internal/inventory"
	"github.com/nikhilbhutani/toolate/internal/membership"
	"github.com/nikhilbhutani/toolate/internal/metrics"
	"github.com/nikhilbhutani/toolate/internal/notify"
	"github.com/nikhilbhutani/toolate/internal/store"
	"github.com/nikhilbhutani/toolate/internal/tenant"
)

type Router struct {
	mux   *chi.Mux
	db    *pgxpool.Pool
	redis *redis.Client
	cfg   *config.Config
	sink  notify.Sink
	jwt   *auth.JWTMiddleware
	rl    *middleware.RateLimiter
}

// NewRouter builds the API. rdb may be nil, in which case slug lookups are
// not cached and invites run without the Redis lock.
func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, sink notify.Sink) *Router {
	return &Router{
		mux:   chi.NewRouter(),
		db:    db,
		redis: rdb,
		cfg:   cfg,
		sink:  sink,
		jwt:   auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		rl:    middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	}
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.rl.Stop()
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.HTTPMetricsMiddleware)
	r.Use(middleware.CORS(rt.cfg.Server.AllowedOrigins))
	r.Use(rt.rl.Limit)

	checks := map[string]handlers.Pinger{}
	if rt.db != nil {
		checks["database"] = rt.db
	}
	if rt.redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return rt.redis.Ping(ctx).Err()
		})
	}
	health := handlers.NewHealthHandler(checks)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	var orgCache *cache.Cache
	if rt.redis != nil {
		orgCache = cache.NewCache(rt.redis)
	}
	orgs := tenant.NewService(rt.db, orgCache, rt.cfg.App.OrgCacheTTL)
	memberStore := store.NewMembershipStore(rt.db)
	branchStore := store.NewBranchStore(rt.db)
	auditSvc := audit.NewService(rt.db)
	dir := identity.NewDirectory(rt.db,
		identity.NewGoTrueClient(rt.cfg.Auth.SupabaseURL, rt.cfg.Auth.ServiceKey),
		identity.Delivery(rt.cfg.App.InviteDelivery),
		rt.cfg.App.URL)

	deps := membership.Deps{
		Organizations: orgs,
		Memberships:   memberStore,
		Invitations:   store.NewInvitationStore(rt.db),
		Branches:      branchStore,
		Directory:     dir,
		Sink:          rt.sink,
		Auditor:       auditSvc,
		AppURL:        rt.cfg.App.URL,
	}
	if orgCache != nil {
		deps.Locker = cache.NewInviteLocker(orgCache, rt.cfg.App.InviteLockTTL)
	}
	reconciler := membership.NewService(deps)

	orgH := handlers.NewOrganizationHandler(reconciler, orgs)
	memberH := handlers.NewMemberHandler(reconciler)
	branchH := handlers.NewBranchHandler(branch.NewService(branchStore, memberStore))
	inventoryH := handlers.NewInventoryHandler(inventory.NewService(store.NewInventoryStore(rt.db)))
	adminH := handlers.NewAdminHandler(auditSvc, memberStore)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.jwt.Authenticate)

		r.Get("/dashboard/init", orgH.DashboardInit)
		r.Post("/invitations/accept", memberH.Accept)

		r.Route("/organizations", func(r chi.Router) {
			r.Post("/", orgH.Create)
			r.Get("/by-slug/{slug}", orgH.BySlug)

			r.Route("/{orgID}", func(r chi.Router) {
				r.Get("/members", memberH.List)
				r.Post("/members", memberH.Invite)
				r.Patch("/members/{memberID}", memberH.UpdateRole)
				r.Delete("/members/{memberID}", memberH.Remove)
				r.Post("/invitations/{invitationID}/resend", memberH.Resend)
				r.Get("/branch-members", memberH.ListBranchMembers)
				r.Get("/branches", branchH.List)
				r.Post("/branches", branchH.Create)
				r.Get("/audit", adminH.AuditLogs)
			})
		})

		r.Route("/branches/{branchID}", func(r chi.Router) {
			r.Put("/", branchH.Update)
			r.Delete("/", branchH.Delete)
			r.Post("/members", memberH.AddBranchMember)
			r.Delete("/members/{memberID}", memberH.RemoveBranchMember)
			r.Get("/inventory", inventoryH.List)
			r.Post("/inventory", inventoryH.Create)
		})

		r.Route("/inventory/{itemID}", func(r chi.Router) {
			r.Get("/", inventoryH.Get)
			r.Put("/", inventoryH.Update)
			r.Delete("/", inventoryH.Delete)
		})
	})

	return otelhttp.NewHandler(r, "toolate-api")
}

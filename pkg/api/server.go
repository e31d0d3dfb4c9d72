package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/config"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/middleware"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/users"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/vendors"
)

// Middleware is a standard handler-wrapping middleware.
type Middleware = func(http.Handler) http.Handler

// Limiters holds the per-route rate limit middlewares. Any entry may be nil,
// in which case the route runs unlimited; the API limiter covers every route
// that has no dedicated one.
type Limiters struct {
	API           Middleware
	Login         Middleware
	Registration  Middleware
	PasswordReset Middleware
	Refresh       Middleware
}

// Deps carries everything the HTTP layer is wired with.
type Deps struct {
	Users         *users.Service
	Vendors       *vendors.Service
	Auditor       *audit.Logger
	Monitor       *monitor.Monitor
	Authenticator *middleware.Authenticator
	Limiters      Limiters
	Log           *observability.Logger
	Metrics       *observability.Metrics

	// DevMode includes error detail in 500 responses.
	DevMode bool
}

// Server is the platform's HTTP API.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	router *mux.Router
	root   http.Handler
	log    *observability.Logger

	httpSrv *http.Server
}

func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: mux.NewRouter(),
		log:    deps.Log,
	}
	s.setupRoutes()

	// CORS wraps outside the router so preflight requests are answered even
	// when no route matches their method.
	s.root = middleware.RequestID(middleware.CORS(cfg.FrontendURL)(middleware.Recover(deps.Log)(s.router)))
	return s
}

func (s *Server) use(m Middleware) Middleware {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m
}

func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		s.router.Use(middleware.HTTPMetrics(s.deps.Metrics))
	}

	authn := s.deps.Authenticator.Handler
	apiLimit := s.use(s.deps.Limiters.API)

	authHandlers := &authHandlers{server: s, users: s.deps.Users}
	vendorHandlers := &vendorHandlers{server: s, vendors: s.deps.Vendors}
	adminHandlers := &adminHandlers{
		server:  s,
		users:   s.deps.Users,
		vendors: s.deps.Vendors,
		auditor: s.deps.Auditor,
		monitor: s.deps.Monitor,
	}

	// Public auth surface; login/registration/reset carry dedicated limits.
	authRouter := s.router.PathPrefix("/api/auth").Subrouter()
	authRouter.Handle("/login", s.use(s.deps.Limiters.Login)(s.handle("login", authHandlers.login))).Methods(http.MethodPost)
	authRouter.Handle("/register", s.use(s.deps.Limiters.Registration)(s.handle("register", authHandlers.register))).Methods(http.MethodPost)
	authRouter.Handle("/refresh", s.use(s.deps.Limiters.Refresh)(s.handle("refresh", authHandlers.refresh))).Methods(http.MethodPost)
	authRouter.Handle("/forgot-password", s.use(s.deps.Limiters.PasswordReset)(s.handle("forgot_password", authHandlers.forgotPassword))).Methods(http.MethodPost)
	authRouter.Handle("/reset-password", s.use(s.deps.Limiters.PasswordReset)(s.handle("reset_password", authHandlers.resetPassword))).Methods(http.MethodPost)
	authRouter.Handle("/verify-email", apiLimit(s.handle("verify_email", authHandlers.verifyEmail))).Methods(http.MethodPost)

	// Authenticated auth surface.
	authRouter.Handle("/logout", authn(s.handle("logout", authHandlers.logout))).Methods(http.MethodPost)
	authRouter.Handle("/profile", authn(s.handle("profile", authHandlers.profile))).Methods(http.MethodGet)
	authRouter.Handle("/change-password", authn(s.handle("change_password", authHandlers.changePassword))).Methods(http.MethodPut)

	// Public vendor catalog.
	s.router.Handle("/api/vendors/public", apiLimit(s.handle("list_vendors", vendorHandlers.listPublic))).Methods(http.MethodGet)
	s.router.Handle("/api/vendors/public/{vendorId}", apiLimit(s.handle("get_vendor", vendorHandlers.getPublic))).Methods(http.MethodGet)

	// Vendor self-service.
	vendorRouter := s.router.PathPrefix("/api/vendors").Subrouter()
	vendorRouter.Use(apiLimit, authn)
	vendorRouter.Handle("/request",
		middleware.RequireRole(auth.RoleCustomer)(s.handle("create_vendor_request", vendorHandlers.createRequest))).Methods(http.MethodPost)
	vendorRouter.Handle("/request/status",
		middleware.RequireAnyRole(auth.RoleCustomer, auth.RoleVendor)(s.handle("vendor_request_status", vendorHandlers.requestStatus))).Methods(http.MethodGet)
	vendorRouter.Handle("/profile",
		middleware.RequireVendor()(s.handle("vendor_profile", vendorHandlers.profile))).Methods(http.MethodGet)
	vendorRouter.Handle("/profile",
		middleware.RequireVendor()(s.handle("update_vendor_profile", vendorHandlers.updateProfile))).Methods(http.MethodPut)
	vendorRouter.Handle("/stats",
		middleware.RequireVendor()(s.handle("vendor_stats", vendorHandlers.stats))).Methods(http.MethodGet)

	// Admin surface.
	adminRouter := s.router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(apiLimit, authn)
	admin := middleware.RequireAdmin()
	superAdmin := middleware.RequireSuperAdmin()
	adminRouter.Handle("/users", admin(s.handle("list_users", adminHandlers.listUsers))).Methods(http.MethodGet)
	adminRouter.Handle("/users/{userId}/role", superAdmin(s.handle("update_user_role", adminHandlers.updateUserRole))).Methods(http.MethodPut)
	adminRouter.Handle("/users/{userId}", superAdmin(s.handle("delete_user", adminHandlers.deleteUser))).Methods(http.MethodDelete)
	adminRouter.Handle("/vendors/pending", admin(s.handle("pending_vendors", adminHandlers.pendingVendors))).Methods(http.MethodGet)
	adminRouter.Handle("/vendors/{userId}/approve", admin(s.handle("review_vendor", adminHandlers.reviewVendor))).Methods(http.MethodPut)
	adminRouter.Handle("/stats", admin(s.handle("platform_stats", adminHandlers.platformStats))).Methods(http.MethodGet)
	adminRouter.Handle("/audit/logs", admin(s.handle("audit_logs", adminHandlers.auditLogs))).Methods(http.MethodGet)
	adminRouter.Handle("/monitoring/health", s.handle("monitoring_health", adminHandlers.monitoringHealth)).Methods(http.MethodGet)
	adminRouter.Handle("/monitoring/report", s.handle("monitoring_report", adminHandlers.monitoringReport)).Methods(http.MethodGet)
}

// Handler exposes the routed stack, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.root
}

// Start begins serving and blocks until the listener fails or closes.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler:      s.root,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.log.WithField("addr", s.httpSrv.Addr).Info("API server listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

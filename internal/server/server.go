// Package server exposes the portal over HTTP. Routes are mounted by hand on
// the goa muxer.
package server

import (
	"net/http"
	"net/netip"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/http/middleware"

	"realtyportal/internal/config"
	"realtyportal/internal/metrics"
	"realtyportal/internal/services"
	"realtyportal/internal/util"
)

// Deps are the services the HTTP surface calls into.
type Deps struct {
	Config       *config.Config
	Auth         *services.AuthService
	Leads        *services.LeadService
	Investors    *services.InvestorService
	LOIs         *services.LOIService
	Prospectuses *services.ProspectusService
	Health       *services.HealthService
	Identity     *util.IdentityVerifier
}

// Server holds the route handlers
type Server struct {
	cfg          *config.Config
	auth         *services.AuthService
	leads        *services.LeadService
	investors    *services.InvestorService
	lois         *services.LOIService
	prospectuses *services.ProspectusService
	health       *services.HealthService
	identity     *util.IdentityVerifier
	mux          goahttp.Muxer
	proxies      []netip.Prefix
	log          *logrus.Entry
}

// New creates a server
func New(d Deps) *Server {
	s := &Server{
		cfg:          d.Config,
		auth:         d.Auth,
		leads:        d.Leads,
		investors:    d.Investors,
		lois:         d.LOIs,
		prospectuses: d.Prospectuses,
		health:       d.Health,
		identity:     d.Identity,
		mux:          goahttp.NewMuxer(),
		log:          logrus.WithField("component", "http"),
	}
	proxies, err := d.Config.App.TrustedProxyPrefixes()
	if err != nil {
		s.log.WithError(err).Warn("Ignoring trusted proxies, forwarding headers will not be honoured")
	}
	s.proxies = proxies
	s.mount()
	return s
}

// pathParam returns a named path segment captured by the muxer
func (s *Server) pathParam(r *http.Request, name string) string {
	return s.mux.Vars(r)[name]
}

// mount registers every route on the server's muxer
func (s *Server) mount() {
	mux := s.mux
	staff, admin := services.ScopeStaff, services.ScopeAdmin

	// Public
	mux.Handle(http.MethodGet, "/health", s.handleHealth)
	mux.Handle(http.MethodPost, "/api/v1/leads", s.handleSubmitLead)
	mux.Handle(http.MethodGet, "/api/v1/prospectuses", s.handleListProspectuses)
	mux.Handle(http.MethodGet, "/api/v1/prospectuses/{id}", s.handleGetProspectus)
	mux.Handle(http.MethodPost, "/api/v1/webhooks/identity", s.handleIdentityWebhook)

	// Investor portal
	mux.Handle(http.MethodGet, "/api/v1/portal/me", s.investor(s.handlePortalMe))
	mux.Handle(http.MethodGet, "/api/v1/portal/lois", s.investor(s.handlePortalListLOIs))
	mux.Handle(http.MethodPost, "/api/v1/portal/lois", s.investor(s.handlePortalSubmitLOI))
	mux.Handle(http.MethodGet, "/api/v1/portal/lois/{id}", s.investor(s.handlePortalGetLOI))
	mux.Handle(http.MethodPost, "/api/v1/portal/lois/{id}/withdraw", s.investor(s.handlePortalWithdrawLOI))
	mux.Handle(http.MethodPatch, "/api/v1/portal/lois/{id}/notes", s.investor(s.handlePortalLOINotes))
	mux.Handle(http.MethodGet, "/api/v1/portal/lois/{id}/pdf", s.investor(s.handlePortalLOIPDF))
	mux.Handle(http.MethodPost, "/api/v1/portal/accreditation", s.investor(s.handlePortalUploadDocument))

	// Back-office accounts
	mux.Handle(http.MethodPost, "/api/v1/auth/login", s.handleLogin)
	mux.Handle(http.MethodGet, "/api/v1/auth/me", s.admin(staff, s.handleMe))
	mux.Handle(http.MethodGet, "/api/v1/auth/users", s.admin(admin, s.handleListUsers))
	mux.Handle(http.MethodPost, "/api/v1/auth/users", s.admin(admin, s.handleCreateUser))
	mux.Handle(http.MethodGet, "/api/v1/auth/users/{id}", s.admin(admin, s.handleGetUser))
	mux.Handle(http.MethodPatch, "/api/v1/auth/users/{id}", s.admin(admin, s.handleUpdateUser))
	mux.Handle(http.MethodDelete, "/api/v1/auth/users/{id}", s.admin(admin, s.handleDeleteUser))

	// Admin
	mux.Handle(http.MethodGet, "/api/v1/admin/leads", s.admin(staff, s.handleAdminListLeads))
	mux.Handle(http.MethodPost, "/api/v1/admin/leads/actions", s.admin(staff, s.handleAdminLeadAction))
	mux.Handle(http.MethodGet, "/api/v1/admin/investors", s.admin(staff, s.handleAdminListInvestors))
	mux.Handle(http.MethodPost, "/api/v1/admin/investors/actions", s.admin(staff, s.handleAdminInvestorAction))
	mux.Handle(http.MethodGet, "/api/v1/admin/investors/{id}", s.admin(staff, s.handleAdminGetInvestor))
	mux.Handle(http.MethodGet, "/api/v1/admin/investors/{id}/documents/{documentId}", s.admin(staff, s.handleAdminDownloadDocument))
	mux.Handle(http.MethodGet, "/api/v1/admin/lois", s.admin(staff, s.handleAdminListLOIs))
	mux.Handle(http.MethodPost, "/api/v1/admin/lois/actions", s.admin(staff, s.handleAdminLOIAction))
	mux.Handle(http.MethodGet, "/api/v1/admin/lois/{id}", s.admin(staff, s.handleAdminGetLOI))
	mux.Handle(http.MethodGet, "/api/v1/admin/lois/{id}/pdf", s.admin(staff, s.handleAdminLOIPDF))
	mux.Handle(http.MethodPost, "/api/v1/admin/lois/{id}/countersign", s.admin(staff, s.handleAdminCountersign))
}

// Handler builds the complete handler: routes, /metrics and the middleware
// chain Security -> CORS -> RequestID -> Logging -> Prometheus -> Handler.
func (s *Server) Handler() http.Handler {
	routed := middleware.PopulateRequestContext()(s.mux)

	metricsHandler := promhttp.Handler()
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			metricsHandler.ServeHTTP(w, r)
			return
		}
		routed.ServeHTTP(w, r)
	})

	logged := middleware.RequestID()(s.requestLogging(metrics.PrometheusMiddleware(root)))
	return securityHeaders(cors(logged, s.cfg), s.cfg)
}

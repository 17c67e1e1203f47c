package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanko-field/storefront/internal/platform/httpx"
)

// RouteRegistrar registers one route group on the sub-router it is handed.
type RouteRegistrar func(r chi.Router)

// routeGroup is a storefront area mounted under the API prefix.
type routeGroup struct {
	path  string
	label string
}

var (
	catalogGroup  = routeGroup{path: "/catalog", label: "catalog"}
	cartGroup     = routeGroup{path: "/cart", label: "cart"}
	wishlistGroup = routeGroup{path: "/wishlist", label: "wishlist"}
	productGroup  = routeGroup{path: "/products", label: "product reviews"}
	sessionGroup  = routeGroup{path: "/session", label: "session"}

	// mount order
	storefrontGroups = []routeGroup{catalogGroup, cartGroup, wishlistGroup, productGroup, sessionGroup}
)

type routerConfig struct {
	prefix      string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	registrars  map[routeGroup]RouteRegistrar
}

type Option func(*routerConfig)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 30 * time.Second
)

// NewRouter assembles the storefront API. Groups without a registrar answer 501 so clients
// can tell a disabled area from a mistyped path.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		prefix:     apiPrefix,
		registrars: make(map[routeGroup]RouteRegistrar, len(storefrontGroups)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	health := cfg.health
	if health == nil {
		health = NewHealthHandlers()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.CleanPath, middleware.Timeout(requestTimeout))
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", "no route for "+req.URL.Path, http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", req.Method+" is not allowed on "+req.URL.Path, http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	r.Route(cfg.prefix, func(api chi.Router) {
		for _, group := range storefrontGroups {
			registrar := cfg.registrars[group]
			if registrar == nil {
				registrar = notConfigured(group.label)
			}
			api.Route(group.path, registrar)
		}
	})
	return r
}

// WithMiddlewares appends middleware after the built-in request id, real ip, path cleaning and
// timeout chain.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) { cfg.health = h }
}

func WithCatalogRoutes(reg RouteRegistrar) Option  { return withGroup(catalogGroup, reg) }
func WithCartRoutes(reg RouteRegistrar) Option     { return withGroup(cartGroup, reg) }
func WithWishlistRoutes(reg RouteRegistrar) Option { return withGroup(wishlistGroup, reg) }
func WithSessionRoutes(reg RouteRegistrar) Option  { return withGroup(sessionGroup, reg) }

// WithProductRoutes mounts /products, which carries the review board endpoints.
func WithProductRoutes(reg RouteRegistrar) Option { return withGroup(productGroup, reg) }

func withGroup(group routeGroup, reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.registrars[group] = reg }
}

func notConfigured(label string) RouteRegistrar {
	return func(r chi.Router) {
		handler := func(w http.ResponseWriter, req *http.Request) {
			httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", label+" endpoints are not enabled on this server", http.StatusNotImplemented))
		}
		r.HandleFunc("/", handler)
		r.HandleFunc("/*", handler)
	}
}

// Package actuator exposes HTTP endpoints for inspecting a running container.
package actuator

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GoCodeAlone/appctx"
	"github.com/GoCodeAlone/appctx/registry"
)

// Inspector is the read-only view of a container served by the router.
// *appctx.Container implements it.
type Inspector interface {
	ID() string
	Name() string
	State() appctx.State
	IsRunning() bool
	RefreshedAt() time.Time
	ComponentNames() []string
	Definition(name string) (*registry.Definition, error)
}

// ComponentInfo describes one component.
type ComponentInfo struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Type        string   `json:"type,omitempty" yaml:"type,omitempty" toml:"type,omitempty"`
	Scope       string   `json:"scope" yaml:"scope" toml:"scope"`
	Role        string   `json:"role" yaml:"role" toml:"role"`
	Lazy        bool     `json:"lazy,omitempty" yaml:"lazy,omitempty" toml:"lazy,omitempty"`
	DependsOn   []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty" toml:"dependsOn,omitempty"`
	Factory     string   `json:"factory,omitempty" yaml:"factory,omitempty" toml:"factory,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	// Registered is false for singletons registered without a definition.
	Registered bool `json:"registered" yaml:"registered" toml:"registered"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status      string    `json:"status"`
	State       string    `json:"state"`
	Running     bool      `json:"running"`
	Container   string    `json:"container"`
	ID          string    `json:"id"`
	RefreshedAt time.Time `json:"refreshedAt,omitzero"`
}

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// RouterOption configures NewRouter.
type RouterOption func(*routerConfig)

type routerConfig struct {
	gatherer prometheus.Gatherer
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) RouterOption {
	return func(c *routerConfig) {
		c.gatherer = g
	}
}

// Describe returns the inventory entry for name.
func Describe(in Inspector, name string) (ComponentInfo, error) {
	def, err := in.Definition(name)
	if errors.Is(err, registry.ErrDefinitionNotFound) {
		if !slices.Contains(in.ComponentNames(), name) {
			return ComponentInfo{}, err
		}
		return ComponentInfo{Name: name, Scope: registry.ScopeSingleton.String(), Role: registry.RoleApplication.String()}, nil
	}
	if err != nil {
		return ComponentInfo{}, err
	}
	info := ComponentInfo{
		Name:        name,
		Scope:       def.Scope.String(),
		Role:        def.Role.String(),
		Lazy:        def.Lazy,
		DependsOn:   def.DependsOn,
		Description: def.Description,
		Registered:  true,
	}
	if def.Type != nil {
		info.Type = def.Type.String()
	}
	if def.FactoryComponent != "" {
		info.Factory = def.FactoryComponent + "." + def.FactoryMethod
	}
	return info, nil
}

// Inventory describes every component in registration order.
func Inventory(in Inspector) ([]ComponentInfo, error) {
	names := in.ComponentNames()
	out := make([]ComponentInfo, 0, len(names))
	for _, name := range names {
		info, err := Describe(in, name)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// NewRouter returns a router serving:
//
//	GET /health            200 when refreshed and running, 503 otherwise
//	GET /components        the component inventory
//	GET /components/{name} one component, 404 when unknown
//	GET /metrics           Prometheus metrics, only with WithMetrics
func NewRouter(in Inspector, opts ...RouterOption) chi.Router {
	var cfg routerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		h := Health{
			Status:      StatusDown,
			State:       in.State().String(),
			Running:     in.IsRunning(),
			Container:   in.Name(),
			ID:          in.ID(),
			RefreshedAt: in.RefreshedAt(),
		}
		code := http.StatusServiceUnavailable
		if in.State() == appctx.StateRefreshed && h.Running {
			h.Status, code = StatusUp, http.StatusOK
		}
		writeJSON(w, code, h)
	})

	r.Route("/components", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			inv, err := Inventory(in)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, inv)
		})
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			info, err := Describe(in, chi.URLParam(req, "name"))
			switch {
			case errors.Is(err, registry.ErrDefinitionNotFound):
				writeError(w, http.StatusNotFound, err)
			case err != nil:
				writeError(w, http.StatusInternalServerError, err)
			default:
				writeJSON(w, http.StatusOK, info)
			}
		})
	})

	if cfg.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

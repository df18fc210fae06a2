// Package serve mounts composition roots over HTTP. Each request gets its
// own root (state cells are never shared across requests); the response
// carries the rendered markup plus the hydration context a client bootstrap
// consumes, and optionally a signed resume token that re-seeds persistent
// state on the next request without a server-side store.
package serve

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/calder-ui/recomp"
	"github.com/calder-ui/recomp/lib/wire"
	"github.com/calder-ui/recomp/render"
)

// ContextElementID is the id of the script element embedding the hydration
// context JSON in served pages.
const ContextElementID = "__recomp-context"

// resumeParam is the query parameter carrying a resume token.
const resumeParam = "s"

// RootFactory builds a fresh composition root for one request. seed holds
// state recovered from a verified resume token (nil without one); pass it
// to recomp.WithHydrationState so the recreated root picks up where the
// previous request's root tore down.
type RootFactory func(r *http.Request, seed map[string]json.RawMessage) *recomp.Root

// Registry manages mounted roots and routing.
type Registry struct {
	mu      sync.RWMutex
	router  chi.Router
	encoder *wire.Encoder
	manager *recomp.HydrationManager
	mounts  map[string]RootFactory

	// Sensitive switches resume tokens from signed (visible, tamper-proof)
	// to encrypted (opaque). Set before the first request.
	Sensitive bool

	// OnError is called when serving a root fails. Customize it to render
	// application error pages.
	OnError func(http.ResponseWriter, *http.Request, error)
}

// NewRegistry creates a registry whose resume tokens are protected with
// the given key.
func NewRegistry(key []byte, opts ...recomp.ManagerOption) *Registry {
	enc, err := wire.NewEncoder(key)
	if err != nil {
		panic(fmt.Sprintf("serve: failed to create encoder: %v", err))
	}
	reg := &Registry{
		router:  chi.NewRouter(),
		encoder: enc,
		manager: recomp.NewHydrationManager(opts...),
		mounts:  make(map[string]RootFactory),
	}
	reg.OnError = func(w http.ResponseWriter, r *http.Request, err error) {
		switch recomp.Classify(err) {
		case recomp.ClassContract:
			http.Error(w, "Internal error", http.StatusInternalServerError)
		case recomp.ClassRootRecoverable:
			http.Error(w, "Bad request", http.StatusBadRequest)
		default:
			http.Error(w, "Internal error", http.StatusInternalServerError)
		}
	}
	return reg
}

// Mount registers a root factory under a URL prefix. Panics on a prefix
// collision, mirroring registration-time verification: collisions are
// programming errors, not request-time conditions.
func (reg *Registry) Mount(prefix string, factory RootFactory) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.mounts[prefix]; exists {
		panic(fmt.Sprintf("serve: prefix collision for %q", prefix))
	}
	reg.mounts[prefix] = factory

	reg.router.Get(prefix+"/", func(w http.ResponseWriter, r *http.Request) {
		reg.servePage(w, r, factory)
	})
	reg.router.Get(prefix+"/context", func(w http.ResponseWriter, r *http.Request) {
		reg.serveContext(w, r, factory)
	})
}

// Handler returns the HTTP handler for all mounted roots.
func (reg *Registry) Handler() http.Handler {
	return reg.router
}

// serveRoot runs one request-scoped composition pass and serializes it.
func (reg *Registry) serveRoot(r *http.Request, factory RootFactory) (*recomp.HydrationContext, *recomp.Root, error) {
	seed, err := reg.decodeResume(r)
	if err != nil {
		return nil, nil, err
	}
	root := factory(r, seed)
	if _, err := root.Mount(); err != nil {
		root.Close()
		return nil, nil, err
	}
	hc, err := reg.manager.Serialize(root)
	if err != nil {
		root.Close()
		return nil, nil, err
	}
	return hc, root, nil
}

func (reg *Registry) servePage(w http.ResponseWriter, r *http.Request, factory RootFactory) {
	hc, root, err := reg.serveRoot(r, factory)
	if err != nil {
		reg.OnError(w, r, err)
		return
	}
	defer root.Close()

	ctxJSON, err := hc.Encode()
	if err != nil {
		reg.OnError(w, r, err)
		return
	}
	token, err := reg.resumeToken(hc)
	if err != nil {
		reg.OnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if token != "" {
		w.Header().Set("X-Recomp-Resume", token)
	}
	body := render.Tree(hc.ComponentTree, hc.Markers)
	if err := body.Render(r.Context(), w); err != nil {
		return
	}
	fmt.Fprintf(w, `<script id="%s" type="application/json">%s</script>`,
		ContextElementID, ctxJSON)
}

func (reg *Registry) serveContext(w http.ResponseWriter, r *http.Request, factory RootFactory) {
	hc, root, err := reg.serveRoot(r, factory)
	if err != nil {
		reg.OnError(w, r, err)
		return
	}
	defer root.Close()

	data, err := hc.Encode()
	if err != nil {
		reg.OnError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// resumeToken packs the context's state data into a wire blob a client can
// hand back on the next request.
func (reg *Registry) resumeToken(hc *recomp.HydrationContext) (string, error) {
	if len(hc.StateData) == 0 {
		return "", nil
	}
	blob := make(map[string][]byte, len(hc.StateData))
	for k, v := range hc.StateData {
		blob[k] = []byte(v)
	}
	return reg.encoder.Encode(blob, reg.Sensitive)
}

// decodeResume verifies and unpacks a resume token from the request, if
// present. An invalid token is rejected rather than silently ignored:
// state authenticity is the point of signing it.
func (reg *Registry) decodeResume(r *http.Request) (map[string]json.RawMessage, error) {
	token := r.URL.Query().Get(resumeParam)
	if token == "" {
		return nil, nil
	}
	var blob map[string][]byte
	if err := reg.encoder.Decode(token, reg.Sensitive, &blob); err != nil {
		return nil, fmt.Errorf("%w: resume token: %v", recomp.ErrDeserialization, err)
	}
	seed := make(map[string]json.RawMessage, len(blob))
	for k, v := range blob {
		seed[k] = json.RawMessage(v)
	}
	return seed, nil
}

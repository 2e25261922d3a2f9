package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects the services to mount. Nil services are skipped.
type RouterOptions struct {
	Billing Mountable
	Admin   Mountable
}

// Router mounts the billing surface under /billing and the admin surface
// under /admin.
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware, jwtSvc.Middleware)
//	r.Mount("/", billing.Router(billing.RouterOptions{
//		Billing: billing.NewService(catalog, ledger, checkout, webhooks, store),
//		Admin:   billing.NewAdminService(admin),
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	if opts.Billing != nil {
		r.Mount("/billing", opts.Billing.Handle())
	}
	if opts.Admin != nil {
		r.Mount("/admin", opts.Admin.Handle())
	}
	return r
}

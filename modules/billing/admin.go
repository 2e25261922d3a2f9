package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/launchpad/handler"
	core "github.com/dmitrymomot/launchpad/pkg/billing"
)

// AdminService serves the /admin routes. Every route requires an ADMIN actor.
type AdminService struct {
	admin  *core.Admin
	userID UserIDFunc
	logger *slog.Logger
}

// NewAdminService panics if admin is nil.
func NewAdminService(admin *core.Admin, opts ...Option) *AdminService {
	if admin == nil {
		panic("billing module: admin service is required")
	}
	o := buildOptions(opts)
	return &AdminService{admin: admin, userID: o.userID, logger: o.logger}
}

func (s *AdminService) Handle() http.Handler {
	r := chi.NewRouter()
	opts := func(binders ...handler.Bind) []handler.WrapOption {
		return []handler.WrapOption{
			handler.WithBinders(binders...),
			handler.WithErrorMapper(mapError),
			handler.WithLogger(s.logger),
		}
	}

	r.Post("/users/update", handler.Wrap(s.updateUser, opts(handler.JSONBody(0))...))
	r.Get("/stats", handler.Wrap(s.stats, opts()...))
	r.Get("/users", handler.Wrap(s.users, opts(handler.Query())...))
	return r
}

type updateUserRequest struct {
	UserID          string     `json:"user_id"`
	Role            *string    `json:"role"`
	Tokens          *int64     `json:"tokens"`
	TokensExpiresAt *time.Time `json:"tokens_expires_at"`
}

func (s *AdminService) updateUser(r *http.Request, req updateUserRequest) handler.Response {
	upd := core.AdminUserUpdate{
		UserID:          req.UserID,
		Tokens:          req.Tokens,
		TokensExpiresAt: req.TokensExpiresAt,
	}
	if req.Role != nil {
		role := core.Role(*req.Role)
		upd.Role = &role
	}

	user, err := s.admin.UpdateUser(r.Context(), s.userID(r.Context()), upd)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(newUserView(user))
}

func (s *AdminService) stats(r *http.Request, _ struct{}) handler.Response {
	stats, err := s.admin.Stats(r.Context(), s.userID(r.Context()))
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(stats)
}

type listUsersRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

func (s *AdminService) users(r *http.Request, req listUsersRequest) handler.Response {
	list, err := s.admin.Users(r.Context(), s.userID(r.Context()), req.Limit, req.Offset)
	if err != nil {
		return handler.JSONError(err)
	}
	views := make([]userOverviewView, 0, len(list))
	for i := range list {
		views = append(views, userOverviewView{
			User:         newUserView(&list[i].User),
			Subscription: newSubscriptionView(list[i].Subscription),
		})
	}
	return handler.JSON(views, handler.WithMeta(map[string]any{"count": len(views)}))
}

// Package handler adapts typed request handlers to net/http and renders the
// JSON envelope used across the API:
//
//	{"data": ..., "meta": {...}, "error": {"code": "...", "message": "...", "details": {...}}}
//
// A handler receives the bound request value and returns a Response:
//
//	type consumeRequest struct {
//		Amount int64 `json:"amount"`
//	}
//
//	router.Post("/tokens/consume", handler.Wrap(func(r *http.Request, req consumeRequest) handler.Response {
//		ok, err := ledger.ConsumeTokens(r.Context(), userID, req.Amount)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(map[string]bool{"consumed": ok})
//	}, handler.WithBinders(handler.JSONBody(0)), handler.WithErrorMapper(mapBillingError)))
//
// Errors are classified in order: HTTPError, ValidationError (400), the
// registered ErrorMappers, then 500.
package handler

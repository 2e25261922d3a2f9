// Package jwt authenticates API callers with HS256 bearer tokens built on
// github.com/golang-jwt/jwt/v5. The token subject is the user id.
//
//	svc, err := jwt.New(jwt.Config{Secret: secret, Issuer: "launchpad"})
//	router.Use(svc.Middleware)
//	userID := jwt.UserIDFromContext(r.Context())
package jwt

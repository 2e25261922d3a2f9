// Package redis connects to the optional Redis instance that shares the
// catalog sync timestamp between service instances.
//
//	cfg := redis.Config{ConnectionURL: "redis://localhost:6379/0", RetryAttempts: 3}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Healthcheck returns a check suitable for the /health endpoint.
package redis

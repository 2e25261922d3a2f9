// Package pg bootstraps PostgreSQL access on pgx/v5: a retrying pool
// constructor, goose migrations over the same pool, a health check and helpers
// to classify driver errors.
//
// Usage:
//
//	cfg, err := config.Load[pg.Config]()
//	if err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, db.Migrations(), slog.Default()); err != nil {
//		return err
//	}
package pg

// Package httpserver runs the HTTP API with graceful shutdown and exposes
// liveness and readiness checks.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server failed", "error", err)
//	}
package httpserver

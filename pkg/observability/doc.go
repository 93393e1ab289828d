// Package observability provides logging, Prometheus metrics, health
// probes and OpenTelemetry tracing setup.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	logger.WithFields(logrus.Fields{"order_id": id}).Info("order paid")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Every Record* method is safe on a nil *Metrics, so services can be built
// without metrics in tests.
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Tracing
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability

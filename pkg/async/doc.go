// Package async provides goroutine helpers with panic recovery, per-task
// timeouts and logging.
//
// SafeGo runs fire-and-forget work such as notification sends:
//
//	async.SafeGo(ctx, logger, 10*time.Second, "send notification", func(ctx context.Context) error {
//		return sender.Send(ctx, kind, payload)
//	})
//
// Batch fans a slice out over a bounded number of workers and collects
// errors, as the billing cycle does for due orders:
//
//	errs := async.Batch(ctx, due, 4, 30*time.Second, func(ctx context.Context, o *orders.Order) error {
//		return charge(ctx, o)
//	})
package async

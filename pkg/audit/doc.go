// Package audit records the history of order state changes.
//
// Every applied transition produces one Event. DBLogger appends events to
// the order_events table and reads them back per order; LogrusLogger
// writes them to the application log. MultiLogger fans one event out to
// several loggers:
//
//	logger := audit.NewMultiLogger(audit.NewDBLogger(db), audit.NewLogrusLogger(log))
//	svc.SetAuditLogger(logger)
//
// Audit failures never fail the transition that produced them.
package audit

// Package orders implements the subscription state machine.
//
// An order moves through these states:
//
//	PENDING ──confirm──▶ PAID ──(recurring)──▶ RECURRING_ACTIVE ──charge ok──▶ RECURRING_ACTIVE
//	   │                                           │
//	   └──fail/timeout──▶ FAILED                   ├──charge declined, retries left──▶ RECURRING_ACTIVE (backoff)
//	                                               ├──retries exhausted──▶ RECURRING_FAILED / RECURRING_CANCELLED
//	                                               └──user cancel──▶ RECURRING_CANCELLED
//
// Machine holds the pure transition rules; time is always passed in.
// Service loads an order, applies an event and persists the result
// together with its subscription side effect (activate, expire, cancel)
// and the users.plan_type write in one transaction. Notifications are sent
// after commit and never roll a transition back.
//
// Duplicate events are no-ops: confirming a PAID order or cancelling a
// cancelled one reports Outcome.Changed == false.
package orders

// Package orderflow is the order-fulfillment workflow: a payment check that
// branches into vendor notification plus confirmation mail, or a
// cancellation mail. It is built against the rewind engine's scheduling API
// and ships concrete collaborators for the payment database (database/sql),
// the vendor queue (NATS JetStream), and the mail provider (REST).
package orderflow

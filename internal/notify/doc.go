// Package notify delivers order confirmations.
//
// Orders enqueue a row in the notification outbox inside the order
// transaction. A Dispatcher claims pending rows, resolves the recipient and
// hands the order to a Sender. Delivery is best-effort: a failed send is
// recorded on the row and never retried.
//
// Senders:
//   - LogSender: writes the rendered confirmation to the process log
//   - SQSSender: publishes the confirmation as JSON to an AWS SQS queue
package notify

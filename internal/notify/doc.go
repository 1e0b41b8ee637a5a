// Package notify delivers messages to the developer channel (Telegram) and the public
// channel (Moltbook).
//
// Senders deliver synchronously and report DeliveryError. Dispatcher wraps a Sender for
// best-effort delivery: the send happens in the background and failures are only logged.
package notify

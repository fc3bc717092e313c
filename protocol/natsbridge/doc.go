// Package natsbridge connects graphs to NATS.
//
// It registers two addons. The "nats" protocol addon owns a process-level
// NATS connection, established when the app's property file configures a
// server URL. The "nats_bridge" extension addon is placed inside a graph
// like any other extension: it publishes the data messages routed to it onto
// a NATS subject and injects messages arriving on a subscribed subject into
// the graph as data messages, re-entering the owning group's loop through a
// posted task so graph code never runs on a NATS callback goroutine.
package natsbridge

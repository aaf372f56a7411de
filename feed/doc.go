// Package feed carries observations over NATS JetStream.
//
// Producers (typically the scheduler that compares task results) publish one
// JSON-encoded observation per message with a Publisher. Subjects follow
// <prefix>.<pool>.<kind>, for example:
//
//	simdeg.obs.boinc.agreement
//	simdeg.obs.boinc.join
//
// A Consumer reads them back through a durable pull consumer and applies them
// to a simdeg.Registry. Join observations create pools on demand. Rejected
// observations are terminated and never redelivered; transient failures are
// nak'ed and retried up to FeedConfig.MaxDeliver times.
//
// A SnapshotPublisher goes the other way: it writes the grouping of every
// pool to a KV bucket under <pool>.<kind>, so schedulers can watch which
// workers agree or collude.
package feed

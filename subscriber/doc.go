// Package subscriber owns the publish/subscribe side of ingestion.
//
// A Controller serializes start, stop and status requests for one Transport
// and forwards every received payload to a Sink, normally an
// ingestion.Pipeline. MQTTTransport is the production Transport.
package subscriber

// Package stokercloud is a client for the StokerCloud API used by NBE pellet
// boiler controllers.
//
// The client holds one bearer token per account and re-authenticates lazily:
// a request made without a token, or rejected by the service, triggers a
// single login followed by a single retry. The controller status endpoint is
// served through a time-boxed cache, and documents can be flattened into a
// single-level mapping keyed by underscore-joined paths:
//
//	{"frontdata":[{"id":"boilertemp","value":"65.3"}]}
//
// becomes
//
//	frontdata_0_id    = "boilertemp"
//	frontdata_0_value = "65.3"
//
// A Client is not safe for concurrent use. Callers that share one between
// goroutines must serialise access themselves.
package stokercloud

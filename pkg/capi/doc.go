// Package capi defines the types, interfaces and shared machinery of the
// Cloud Foundry service deployer.
//
// # Overview
//
// Client aggregates the deployer components: a ServiceProvisioner that
// creates managed service instances with fallback offerings, an
// AuthorizationChecker that answers space permission questions, and a
// LogIncrementalFetcher that reads recent application logs from log-cache.
// The concrete implementation lives in internal/client and is built by the
// cfclient package.
//
//	cli, err := cfclient.New(ctx, &capi.Config{
//	  APIEndpoint: "https://api.example.com",
//	  AccessToken: token,
//	})
//	if err != nil { log.Fatal(err) }
//	defer cli.Close()
//
//	ok, err := cli.Authorization().IsAuthorized(ctx, user, spaceGUID, false)
//
// # Dialects and mapping
//
// Cloud Controller v2 wraps every resource in metadata/entity envelopes and
// pages with next_url; v3 resources are flat and page with
// pagination.next.href. A ResourceDecoder (DecoderFor) hides the difference,
// and ResourceMapper turns raw resources into the typed values of this
// package. Unknown enum values fail with ErrUnknownEnumValue.
//
// # Execution and errors
//
// Every remote call goes through an Executor. Connection failures
// (*TransportError) are retried with exponential backoff; HTTP status
// failures (*StatusError) are never retried and are translated into a
// *DomainError carrying the Cloud Controller's description. Callers may pass
// status codes to ignore, in which case the zero value is returned.
//
// # Caching and batches
//
// TTLCache memoizes per-key lookups such as a space's developers.
// BatchExecutor provisions the services of a ServiceManifest with bounded
// concurrency.
//
// # Metrics
//
// Metrics registers Prometheus collectors for requests, retries, cache
// lookups, authorization decisions and provisioning outcomes. A nil *Metrics
// disables them.
package capi

// Package cfclient is the entry point for building a capi.Client.
//
// It normalizes the API endpoint, picks the authentication method from
// capi.Config and discovers the UAA and log-cache endpoints from the API
// root ("/") when they are not configured.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/capi-deployer/pkg/capi"
//	  "github.com/fivetwenty-io/capi-deployer/pkg/cfclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  cli, err := cfclient.New(ctx, &capi.Config{
//	    APIEndpoint:  "api.example.com",
//	    ClientID:     "deployer",
//	    ClientSecret: "secret",
//	  })
//	  if err != nil { log.Fatal(err) }
//	  defer cli.Close()
//
//	  result, err := cli.Provisioner().Provision(ctx, &capi.ServiceProvisionRequest{
//	    Name:                 "orders-db",
//	    Offering:             "postgresql",
//	    Plan:                 "small",
//	    SpaceGUID:            "0b4c8a5e-6f1d-4b8e-9a3a-2f3c4d5e6f70",
//	    AlternativeOfferings: []string{"postgresql-trial"},
//	  })
//	  if err != nil { log.Fatal(err) }
//	  _ = result
//	}
//
// # TLS and development mode
//
// Config.SkipTLSVerify is rejected unless the environment variable
// CAPI_DEV_MODE is "true" or "1".
//
// # Discovery
//
// A failed root request is fatal only when credentials need a token URL.
// Without a discoverable log-cache, Logs().GetRecentLogs returns
// capi.ErrNoLogCacheURL.
package cfclient

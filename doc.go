/*
Package httpcore is a small HTTP/1.1 server core: a strict wire parser,
a segment-trie router, and a connection supervisor that runs one
goroutine per connection under a fixed concurrency cap.

The core speaks exactly HTTP/1.1 with Content-Length framing. Requests
that do not fit that shape are answered with a precise status (501 for
an unrecognized method, 505 for another version, 411 for
Transfer-Encoding, 431/413 for oversized heads and bodies) and the
connection is closed whenever framing cannot be trusted. Handlers are
plain functions: they receive a fully framed request plus route
parameters and return a response value; the supervisor owns every
timeout, limit, panic recovery, and close decision around them.

Basic usage:

	package main

	import (
	    "github.com/searchktools/httpcore/app"
	    "github.com/searchktools/httpcore/config"
	    "github.com/searchktools/httpcore/core/http"
	    "github.com/searchktools/httpcore/core/router"
	)

	func main() {
	    cfg := config.New()
	    application := app.New(cfg)

	    srv := application.Server()
	    srv.GET("/hello", func(req *http.Request, _ router.Params) *http.Response {
	        return http.Text(200, "Hello, World!")
	    })
	    srv.GET("/users/:id", func(req *http.Request, p router.Params) *http.Response {
	        return http.JSON(200, map[string]string{"user_id": p["id"]})
	    })

	    application.Run()
	}

Modules:

  - app: process lifecycle (signals, graceful shutdown)
  - config: flag and environment configuration
  - core: connection supervisor (accept loop, concurrency cap, timeouts)
  - core/http: wire reading, parsing, and response serialization
  - core/router: method-aware path routing with named parameters
  - core/pools: worker pool for CPU-heavy handler offload
*/
package httpcore

// Command healthprobe performs a single liveness check against a running
// backchannel gateway. Intended for container HEALTHCHECK directives and CI.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	addr := flag.String("addr", "http://127.0.0.1:8374", "gateway base URL")
	path := flag.String("path", "/healthz", "probe path (/healthz or /readyz)")
	timeout := flag.Duration("timeout", 3*time.Second, "request timeout")
	flag.Parse()

	req := fasthttp.AcquireRequest()
	res := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(res)

	req.SetRequestURI(*addr + *path)
	req.Header.SetMethod(fasthttp.MethodGet)

	c := &fasthttp.Client{ReadTimeout: *timeout, WriteTimeout: *timeout}
	if err := c.DoTimeout(req, res, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
		os.Exit(1)
	}
	if res.StatusCode() != fasthttp.StatusOK {
		fmt.Fprintf(os.Stderr, "probe failed: status %d: %s\n", res.StatusCode(), res.Body())
		os.Exit(1)
	}
	fmt.Printf("%s\n", res.Body())
}

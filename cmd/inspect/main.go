// Command inspect dumps keys from a backchannel Pebble store. Useful for
// debugging sync state without a running daemon.
package main

import (
	"flag"
	"fmt"
	"os"

	"backchannel/pkg/logger"
	"backchannel/pkg/store"
)

func main() {
	var dbPath string
	var prefix string
	var values bool
	flag.StringVar(&dbPath, "db", "", "Pebble DB path")
	flag.StringVar(&prefix, "prefix", "", "key prefix filter (e.g. chat:, contact:)")
	flag.BoolVar(&values, "values", false, "print values alongside keys")
	flag.Parse()
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.Init()
	if err := store.Open(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListKeys(prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
		os.Exit(1)
	}
	for _, k := range keys {
		if !values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	fmt.Fprintf(os.Stderr, "%d keys\n", len(keys))
}

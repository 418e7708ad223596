package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
)

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var identifier string
	var idType string
	var tenantID string
	var addr string
	var outPath string

	fs.StringVar(&identifier, "identifier", "", "certificate number or verification code")
	fs.StringVar(&idType, "type", "number", "identifier type: number or code")
	fs.StringVar(&tenantID, "tenant", "", "tenant id (required for number lookups)")
	fs.StringVar(&addr, "addr", "", "certledgerd base URL")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if identifier == "" {
		fmt.Fprintln(os.Stderr, "verify requires --identifier")
		return 1
	}

	payload := map[string]string{
		"identifier": identifier,
		"type":       idType,
	}
	if tenantID != "" {
		payload["tenant_id"] = tenantID
	}

	out, err := callAPI(http.MethodPost, serverAddr(addr), "/v1/verify", tenantID, payload, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
)

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var tenantID string
	var number string
	var to string
	var reason string
	var actorRole string
	var actorID string
	var addr string
	var outPath string

	fs.StringVar(&tenantID, "tenant", "", "tenant id")
	fs.StringVar(&number, "number", "", "certificate number")
	fs.StringVar(&to, "to", "", "target status: valid, suspended, or revoked")
	fs.StringVar(&reason, "reason", "", "transition reason")
	fs.StringVar(&actorRole, "actor-role", "issuer", "actor role: issuer or admin")
	fs.StringVar(&actorID, "actor-id", "", "actor identifier")
	fs.StringVar(&addr, "addr", "", "certledgerd base URL")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if tenantID == "" || number == "" || to == "" {
		fmt.Fprintln(os.Stderr, "status requires --tenant, --number and --to")
		return 1
	}

	payload := map[string]string{
		"status":     to,
		"reason":     reason,
		"actor_role": actorRole,
		"actor_id":   actorID,
	}
	path := "/v1/certificates/" + url.PathEscape(number) + "/status"
	out, err := callAPI(http.MethodPost, serverAddr(addr), path, tenantID, payload, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

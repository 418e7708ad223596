package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
)

func runIssue(args []string) int {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var tenantID string
	var inPath string
	var number string
	var addr string
	var outPath string

	fs.StringVar(&tenantID, "tenant", "", "tenant id")
	fs.StringVar(&inPath, "in", "", "certificate input JSON path")
	fs.StringVar(&number, "number", "", "retry a previous issuance under this certificate number")
	fs.StringVar(&addr, "addr", "", "certledgerd base URL")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if tenantID == "" || inPath == "" {
		fmt.Fprintln(os.Stderr, "issue requires --tenant and --in")
		return 1
	}

	raw, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read input: %v\n", err)
		return 1
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "decode input: %v\n", err)
		return 1
	}
	if number != "" {
		payload["certificate_number"] = number
	}

	out, err := callAPI(http.MethodPost, serverAddr(addr), "/v1/certificates", tenantID, payload, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

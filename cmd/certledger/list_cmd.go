package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
)

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var tenantID string
	var organization string
	var standard string
	var status string
	var publicOnly bool
	var pageSize int
	var pageToken string
	var addr string
	var outPath string

	fs.StringVar(&tenantID, "tenant", "", "tenant id")
	fs.StringVar(&organization, "organization", "", "filter by organization name (contains)")
	fs.StringVar(&standard, "standard", "", "filter by standard number (exact)")
	fs.StringVar(&status, "status", "", "filter by status")
	fs.BoolVar(&publicOnly, "public", false, "only publicly searchable certificates")
	fs.IntVar(&pageSize, "page-size", 0, "page size")
	fs.StringVar(&pageToken, "page-token", "", "continuation token")
	fs.StringVar(&addr, "addr", "", "certledgerd base URL")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if tenantID == "" {
		fmt.Fprintln(os.Stderr, "list requires --tenant")
		return 1
	}

	query := url.Values{}
	if organization != "" {
		query.Set("organization", organization)
	}
	if standard != "" {
		query.Set("standard", standard)
	}
	if status != "" {
		query.Set("status", status)
	}
	if publicOnly {
		query.Set("public", "true")
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}

	out, err := callAPI(http.MethodGet, serverAddr(addr), "/v1/certificates", tenantID, nil, query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

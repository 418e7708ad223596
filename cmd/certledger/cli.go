package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "issue":
		return runIssue(args[2:])
	case "verify":
		return runVerify(args[2:])
	case "status":
		return runStatus(args[2:])
	case "list":
		return runList(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "certledger"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s issue --tenant <id> --in <certificate.json> [--number <certificate-number>] [--addr <url>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s verify --identifier <number-or-code> [--type number|code] [--tenant <id>] [--addr <url>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s status --tenant <id> --number <certificate-number> --to <valid|suspended|revoked> --reason <text> [--actor-role issuer|admin] [--actor-id <id>] [--addr <url>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s list --tenant <id> [--organization <name>] [--standard <number>] [--status <status>] [--page-size <n>] [--page-token <token>] [--addr <url>]\n", name)
}

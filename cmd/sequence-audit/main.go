// sequence-audit checks every numbering scope (batches, finished products,
// bottles) for gaps, reused sequence values and malformed codes.
//
// Usage:
//
//	DB_DRIVER=mysql DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/sequence-audit -out audit.xlsx
//
// Exits with status 2 when any scope is unhealthy (duplicates or malformed codes).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/models"
	"bitbucket.org/mmdatafocus/brewery_backend/models/reports"
	"github.com/sirupsen/logrus"
)

func main() {
	out := flag.String("out", "", "Optional: write the audit to this .xlsx file")
	onlyUnhealthy := flag.Bool("unhealthy", false, "Print only scopes with duplicates or malformed codes")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	audits, err := models.AuditSequences(context.Background())
	if err != nil {
		config.LogError(logger, "SequenceAudit", "main", "audit sequences", nil, err)
		fmt.Fprintf(os.Stderr, "audit failed: %v\n", err)
		os.Exit(1)
	}

	unhealthy := 0
	for _, a := range audits {
		if !a.Healthy() {
			unhealthy++
		} else if *onlyUnhealthy {
			continue
		}
		fmt.Printf("%-18s %-28s count=%-5d max=%-5d gaps=%v duplicates=%v malformed=[%s]\n",
			a.Format, a.Scope, a.Count, a.MaxSequence, a.Gaps, a.Duplicates, strings.Join(a.Malformed, " "))
	}

	if *out != "" {
		if err := reports.ExportSequenceAudit(audits, *out); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *out)
	}

	logger.WithFields(logrus.Fields{
		"scopes":    len(audits),
		"unhealthy": unhealthy,
	}).Info("sequence audit finished")
	if unhealthy > 0 {
		os.Exit(2)
	}
}

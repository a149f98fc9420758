// report fetches a performance report from a running telemetry server, or
// reads one previously downloaded, and prints a colorized summary to the
// terminal. It can also write the rendered markdown or HTML to a file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Damatnic/astral-core-v7-sub003/internal/export"
	"github.com/Damatnic/astral-core-v7-sub003/pkg/types"
)

func main() {
	var (
		server = flag.String("server", "http://localhost:8080", "telemetry server base URL")
		file   = flag.String("file", "", "read a downloaded report JSON file instead of fetching")
		outMD  = flag.String("md", "", "write the rendered markdown report to this path")
		outHTM = flag.String("html", "", "write the rendered HTML report to this path")
	)
	flag.Parse()

	payload, err := loadReport(*server, *file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	printSummary(payload)

	if *outMD != "" {
		if err := os.WriteFile(*outMD, []byte(export.Markdown(payload)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: writing markdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("markdown report written to %s\n", *outMD)
	}
	if *outHTM != "" {
		doc, err := export.HTML(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: rendering HTML: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outHTM, doc, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: writing HTML: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("HTML report written to %s\n", *outHTM)
	}
}

func loadReport(server, file string) (export.Payload, error) {
	var payload export.Payload

	if file != "" {
		data, err := os.ReadFile(file) // #nosec G304 -- operator-supplied path
		if err != nil {
			return payload, fmt.Errorf("reading report file: %w", err)
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			return payload, fmt.Errorf("parsing report file: %w", err)
		}
		return payload, nil
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Get(strings.TrimRight(server, "/") + "/v1/report")
	if err != nil {
		return payload, fmt.Errorf("fetching report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return payload, fmt.Errorf("fetching report: server returned %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return payload, fmt.Errorf("reading report response: %w", err)
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, fmt.Errorf("parsing report response: %w", err)
	}
	return payload, nil
}

func printSummary(p export.Payload) {
	title := color.New(color.Bold, color.FgCyan)
	heading := color.New(color.Bold)

	title.Println("Performance Report")
	fmt.Printf("generated %s (schema %s)\n\n", p.Timestamp.Format(time.RFC1123), p.Version)

	heading.Print("Overall: ")
	gradeColor(p.Grade).Printf("%.0f (%s)\n\n", p.Score, p.Grade)

	if len(p.VitalScores) > 0 {
		heading.Println("Vitals")
		for metric, score := range p.VitalScores {
			scoreColor(score).Printf("  %-24s %.0f\n", metric, score)
		}
		fmt.Println()
	}

	if p.APIStats.TotalRequests > 0 {
		heading.Println("API calls")
		fmt.Printf("  %d requests, avg %.0fms, p95 %.0fms, error rate %.1f%%\n",
			p.APIStats.TotalRequests, p.APIStats.AverageResponseTime,
			p.APIStats.P95ResponseTime, p.APIStats.ErrorRate*100)
		for _, ep := range p.APIStats.SlowestEndpoints {
			fmt.Printf("  %-32s worst %.0fms over %d request(s)\n", ep.Endpoint, ep.SlowestTime, ep.Requests)
		}
		fmt.Println()
	}

	if p.QueryStats.TotalQueries > 0 {
		heading.Println("Queries")
		fmt.Printf("  %d queries (%d failed), avg %.0fms, p95 %.0fms\n",
			p.QueryStats.TotalQueries, p.QueryStats.FailedQueries,
			p.QueryStats.AverageDuration, p.QueryStats.P95Duration)
		if p.QueryStats.CacheHitRatio != nil {
			fmt.Printf("  cache hit ratio %.1f%%\n", *p.QueryStats.CacheHitRatio*100)
		}
		fmt.Println()
	}

	if len(p.Insights) > 0 {
		heading.Println("Insights")
		for _, in := range p.Insights {
			severityColor(in.Severity).Printf("  [%s] ", strings.ToUpper(string(in.Severity)))
			fmt.Println(in.Message)
		}
		fmt.Println()
	}

	if len(p.Violations) > 0 {
		heading.Println("Budget violations")
		for _, v := range p.Violations {
			severityColor(impactSeverity(v.Impact)).Printf("  [%s] ", strings.ToUpper(string(v.Impact)))
			fmt.Printf("%s: %.0f observed against ceiling %.0f\n", v.Metric, v.Observed, v.Ceiling)
		}
	} else {
		color.Green("All performance budgets passed.")
	}
}

func gradeColor(g types.Grade) *color.Color {
	switch g {
	case types.GradeA, types.GradeB:
		return color.New(color.FgGreen, color.Bold)
	case types.GradeC, types.GradeD:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 90:
		return color.New(color.FgGreen)
	case score >= 70:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func severityColor(s types.Severity) *color.Color {
	switch s {
	case types.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case types.SeverityHigh:
		return color.New(color.FgRed)
	case types.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func impactSeverity(impact types.ViolationImpact) types.Severity {
	switch impact {
	case types.ImpactCritical:
		return types.SeverityCritical
	case types.ImpactMajor:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}

package export

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown renders the payload as a human-readable report document
func Markdown(p Payload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Performance Report\n\n")
	fmt.Fprintf(&b, "Generated %s\n\n", p.Timestamp.Format(time.RFC1123))
	fmt.Fprintf(&b, "**Overall score: %.0f (%s)**\n\n", p.Score, p.Grade)

	if len(p.VitalScores) > 0 {
		b.WriteString("## Vitals\n\n")
		b.WriteString("| Metric | Score |\n|---|---|\n")
		for _, metric := range sortedKeys(p.VitalScores) {
			fmt.Fprintf(&b, "| %s | %.0f |\n", metric, p.VitalScores[metric])
		}
		b.WriteString("\n")
	}

	if p.APIStats.TotalRequests > 0 {
		b.WriteString("## API Calls\n\n")
		fmt.Fprintf(&b, "- Total requests: %d\n", p.APIStats.TotalRequests)
		fmt.Fprintf(&b, "- Average response time: %.0fms\n", p.APIStats.AverageResponseTime)
		fmt.Fprintf(&b, "- P95 response time: %.0fms\n", p.APIStats.P95ResponseTime)
		fmt.Fprintf(&b, "- Error rate: %.1f%%\n", p.APIStats.ErrorRate*100)
		if len(p.APIStats.SlowestEndpoints) > 0 {
			b.WriteString("\n### Slowest endpoints\n\n")
			b.WriteString("| Endpoint | Worst | Average | Requests |\n|---|---|---|---|\n")
			for _, ep := range p.APIStats.SlowestEndpoints {
				fmt.Fprintf(&b, "| %s | %.0fms | %.0fms | %d |\n",
					ep.Endpoint, ep.SlowestTime, ep.AverageTime, ep.Requests)
			}
		}
		b.WriteString("\n")
	}

	if p.QueryStats.TotalQueries > 0 {
		b.WriteString("## Queries\n\n")
		fmt.Fprintf(&b, "- Total queries: %d (%d failed)\n", p.QueryStats.TotalQueries, p.QueryStats.FailedQueries)
		fmt.Fprintf(&b, "- Average duration: %.0fms\n", p.QueryStats.AverageDuration)
		fmt.Fprintf(&b, "- P95 duration: %.0fms\n", p.QueryStats.P95Duration)
		if p.QueryStats.CacheHitRatio != nil {
			fmt.Fprintf(&b, "- Cache hit ratio: %.1f%%\n", *p.QueryStats.CacheHitRatio*100)
		}
		b.WriteString("\n")
	}

	if len(p.Insights) > 0 {
		b.WriteString("## Insights\n\n")
		for _, in := range p.Insights {
			fmt.Fprintf(&b, "- **[%s]** %s\n  %s\n", strings.ToUpper(string(in.Severity)), in.Message, in.Recommendation)
		}
		b.WriteString("\n")
	}

	if len(p.Violations) > 0 {
		b.WriteString("## Budget Violations\n\n")
		b.WriteString("| Metric | Ceiling | Observed | Impact |\n|---|---|---|---|\n")
		for _, v := range p.Violations {
			fmt.Fprintf(&b, "| %s | %.0f | %.0f | %s |\n", v.Metric, v.Ceiling, v.Observed, v.Impact)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("All performance budgets passed.\n")
	}

	return b.String()
}

// HTML renders the payload as a standalone HTML document for download
func HTML(p Payload) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(p)), &body); err != nil {
		return nil, fmt.Errorf("rendering report HTML: %w", err)
	}

	var doc bytes.Buffer
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	doc.WriteString("<title>Performance Report</title>\n")
	doc.WriteString("<style>body{font-family:sans-serif;max-width:60rem;margin:2rem auto;padding:0 1rem}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:0.3rem 0.6rem}</style>\n")
	doc.WriteString("</head>\n<body>\n")
	doc.Write(body.Bytes())
	doc.WriteString("</body>\n</html>\n")
	return doc.Bytes(), nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

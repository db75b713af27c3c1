package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/chess-vn/chessload/pkg/jsonpath"
)

func newSummaryCmd(root *rootOptions) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "summary <file>",
		Short: "Inspect a summary written by run --summary-export",
		Long: `Print the verdict and threshold results of an exported run summary.

With --query, print the value at a gjson or JSONPath path instead:
  chessload summary out.json --query metrics.latency.p95
  chessload summary out.json --query '$.thresholds[0].passed'
  chessload summary out.json --query 'checks.#(name=="status is 200").fails'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printSummary(root, args[0], query)
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "gjson or JSONPath path to print")
	return cmd
}

func printSummary(root *rootOptions, path, query string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read summary: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("%s is not valid JSON", path)
	}

	if query != "" {
		value, err := jsonpath.Extract(data, query)
		if err != nil {
			return err
		}
		fmt.Fprintln(root.out, value)
		return nil
	}

	doc := gjson.ParseBytes(data)

	verdict := "PASSED"
	if !doc.Get("passed").Bool() {
		verdict = "FAILED"
	}
	if doc.Get("interrupted").Bool() {
		verdict += " (interrupted)"
	}
	fmt.Fprintf(root.out, "%s  %s  run %s\n", doc.Get("name").String(), verdict, doc.Get("runId").String())

	fmt.Fprintf(root.out, "  http_reqs ............: %d\n", doc.Get("metrics.totalRequests").Int())
	fmt.Fprintf(root.out, "  http_req_failed ......: %.2f%%\n", doc.Get("metrics.errorRate").Float()*100)
	fmt.Fprintf(root.out, "  iterations ...........: %d\n", doc.Get("metrics.iterations").Int())

	doc.Get("thresholds").ForEach(func(_, t gjson.Result) bool {
		icon := "✓"
		if !t.Get("passed").Bool() {
			icon = "✗"
		}
		fmt.Fprintf(root.out, "  %s %s %s (actual: %s)\n",
			icon, t.Get("metric").String(), t.Get("expression").String(), t.Get("value").String())
		return true
	})

	return nil
}

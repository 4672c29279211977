package main

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"
)

// handleRoutingTable shows deployments, their health and the persona catalog.
func handleRoutingTable(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		handleRoutingTableJSON(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>innerchat Routing Table</title>
    <style>
        body { font-family: monospace; background: #0a0a0a; color: #00ff41; padding: 20px; }
        h1 { color: #ffcc00; border-bottom: 2px solid #00ff41; padding-bottom: 10px; }
        h2 { color: #00ccff; margin-top: 30px; }
        table { width: 100%%; border-collapse: collapse; margin: 20px 0; }
        th { background: #1a1a1a; color: #00ff41; padding: 10px; text-align: left; border: 1px solid #00ff41; }
        td { padding: 8px; border: 1px solid #333; }
        .healthy { background: #00ff41; color: #000; padding: 2px 6px; border-radius: 3px; }
        .unhealthy { background: #ff3333; color: #fff; padding: 2px 6px; border-radius: 3px; }
        .info { color: #00ccff; }
    </style>
</head>
<body>
    <h1>Model Routing Table</h1>
`)

	privacy := "LLM calls are NOT being logged"
	if auditEnabled() {
		privacy = "LLM calls are logged as hashes and token counts; message text is never stored"
	}
	fmt.Fprintf(w, `    <p class="info">Strategy: %s &middot; %s</p>
`, html.EscapeString(string(modelRouter.Strategy())), privacy)

	fmt.Fprintf(w, `    <h2>Deployments</h2>
    <table>
        <tr><th>Deployment</th><th>Model</th><th>Provider</th><th>Priority</th><th>Status</th><th>Circuit</th><th>Requests</th><th>Avg latency</th></tr>
`)
	for _, d := range modelRouter.Snapshot() {
		status := `<span class="healthy">HEALTHY</span>`
		if !d.Status.Available || !d.Status.Healthy {
			status = `<span class="unhealthy">DOWN</span>`
		}
		fmt.Fprintf(w, `        <tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%d/%d</td><td>%.0fms</td></tr>
`,
			html.EscapeString(d.ID),
			html.EscapeString(d.ModelID),
			html.EscapeString(string(d.Provider)),
			d.Priority,
			status,
			html.EscapeString(d.Tags["circuit"]),
			d.Metrics.SuccessRequests, d.Metrics.TotalRequests,
			d.Metrics.AverageLatency)
	}
	fmt.Fprintf(w, "    </table>\n")

	fmt.Fprintf(w, `    <h2>Personas</h2>
    <table>
        <tr><th>ID</th><th>Name</th><th>Style</th></tr>
`)
	for _, p := range personaCatalog.List() {
		fmt.Fprintf(w, "        <tr><td>%s</td><td>%s</td><td>%s</td></tr>\n",
			html.EscapeString(p.ID), html.EscapeString(p.Name), html.EscapeString(p.Style))
	}
	fmt.Fprintf(w, "    </table>\n    <p class=\"info\">Generated %s</p>\n</body>\n</html>\n",
		time.Now().UTC().Format(time.RFC3339))
}

func handleRoutingTableJSON(w http.ResponseWriter, r *http.Request) {
	deployments := make([]DeploymentResponse, 0)
	for _, d := range modelRouter.Snapshot() {
		deployments = append(deployments, toDeploymentResponse(d))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategy":    modelRouter.Strategy(),
		"deployments": deployments,
		"personas":    personaCatalog.Names(),
		"audit":       auditEnabled(),
		"timestamp":   time.Now().Unix(),
	})
}

// Command synctl is the operator CLI over the admin API: register, list,
// inspect, and force-scan or retry series, and dry-run/apply domain
// migrations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:3000"

func main() {
	global := flag.NewFlagSet("synctl", flag.ExitOnError)
	baseURL := global.String("api", defaultBaseURL, "admin API base URL")
	apiKey := global.String("key", os.Getenv("AUTOMIRROR_ADMIN_API_KEY"), "admin API key")
	if err := global.Parse(os.Args[1:]); err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	args := global.Args()
	if len(args) < 2 || args[0] != "series" {
		printUsage()
		os.Exit(1)
	}

	ctx := context.Background()
	client := &http.Client{Timeout: 15 * time.Second}
	sub := args[1]
	rest := args[2:]

	switch sub {
	case "create":
		handleCreate(ctx, client, *baseURL, *apiKey, rest)
	case "list":
		handleList(ctx, client, *baseURL, *apiKey, rest)
	case "get":
		handleGet(ctx, client, *baseURL, *apiKey, rest)
	case "update":
		handleUpdate(ctx, client, *baseURL, *apiKey, rest)
	case "delete":
		handleDelete(ctx, client, *baseURL, *apiKey, rest)
	case "force-scan":
		handleForceScan(ctx, client, *baseURL, *apiKey, rest)
	case "retry":
		handleRetry(ctx, client, *baseURL, *apiKey, rest)
	case "update-domain":
		handleUpdateDomain(ctx, client, *baseURL, *apiKey, rest)
	default:
		printUsage()
		os.Exit(1)
	}
}

func handleCreate(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series create", flag.ExitOnError)
	externalID := fs.String("external-id", "", "external catalog id")
	title := fs.String("title", "", "series title")
	sources := fs.String("sources", "", "comma-separated source urls (1-3)")
	interval := fs.Int("interval-minutes", 360, "check interval in minutes")
	priority := fs.Int("priority", 0, "scheduling priority")
	_ = fs.Parse(args)

	if *externalID == "" || *title == "" || *sources == "" {
		log.Fatal("external-id, title, and sources are required")
	}
	payload := map[string]any{
		"external_id":            *externalID,
		"title":                  *title,
		"source_urls":            strings.Split(*sources, ","),
		"check_interval_minutes": *interval,
		"priority":               *priority,
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/series", apiKey, payload, &resp); err != nil {
		log.Fatalf("create failed: %v", err)
	}
	printJSON(resp)
}

func handleList(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series list", flag.ExitOnError)
	status := fs.String("status", "", "status filter")
	title := fs.String("title", "", "title substring filter")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 20, "page size")
	_ = fs.Parse(args)

	u, err := url.Parse(baseURL + "/series")
	if err != nil {
		log.Fatalf("invalid base url: %v", err)
	}
	q := u.Query()
	if *status != "" {
		q.Set("status", *status)
	}
	if *title != "" {
		q.Set("title", *title)
	}
	q.Set("page", strconv.Itoa(*page))
	q.Set("page_size", strconv.Itoa(*pageSize))
	u.RawQuery = q.Encode()

	var resp any
	if err := doJSON(ctx, client, http.MethodGet, u.String(), apiKey, nil, &resp); err != nil {
		log.Fatalf("list failed: %v", err)
	}
	printJSON(resp)
}

func handleGet(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series get", flag.ExitOnError)
	id := fs.String("id", "", "series id")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("id is required")
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodGet, baseURL+"/series/"+url.PathEscape(*id), apiKey, nil, &resp); err != nil {
		log.Fatalf("get failed: %v", err)
	}
	printJSON(resp)
}

func handleUpdate(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series update", flag.ExitOnError)
	id := fs.String("id", "", "series id")
	title := fs.String("title", "", "new title")
	interval := fs.Int("interval-minutes", 0, "new check interval in minutes (0 = unchanged)")
	priority := fs.Int("priority", -1, "new priority (-1 = unchanged)")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("id is required")
	}

	patch := map[string]any{}
	if *title != "" {
		patch["title"] = *title
	}
	if *interval > 0 {
		patch["check_interval_minutes"] = *interval
	}
	if *priority >= 0 {
		patch["priority"] = *priority
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodPut, baseURL+"/series/"+url.PathEscape(*id), apiKey, patch, &resp); err != nil {
		log.Fatalf("update failed: %v", err)
	}
	printJSON(resp)
}

func handleDelete(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series delete", flag.ExitOnError)
	id := fs.String("id", "", "series id")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("id is required")
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodDelete, baseURL+"/series/"+url.PathEscape(*id), apiKey, nil, &resp); err != nil {
		log.Fatalf("delete failed: %v", err)
	}
	printJSON(resp)
}

func handleForceScan(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series force-scan", flag.ExitOnError)
	id := fs.String("id", "", "series id")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("id is required")
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/series/"+url.PathEscape(*id)+"/force-scan", apiKey, nil, &resp); err != nil {
		log.Fatalf("force-scan failed: %v", err)
	}
	printJSON(resp)
}

func handleRetry(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series retry", flag.ExitOnError)
	id := fs.String("id", "", "series id")
	_ = fs.Parse(args)
	if *id == "" {
		log.Fatal("id is required")
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/series/"+url.PathEscape(*id)+"/retry", apiKey, nil, &resp); err != nil {
		log.Fatalf("retry failed: %v", err)
	}
	printJSON(resp)
}

func handleUpdateDomain(ctx context.Context, client *http.Client, baseURL, apiKey string, args []string) {
	fs := flag.NewFlagSet("series update-domain", flag.ExitOnError)
	oldDomain := fs.String("old-domain", "", "domain to migrate from")
	newDomain := fs.String("new-domain", "", "domain to migrate to")
	apply := fs.Bool("apply", false, "apply the migration instead of a dry run")
	_ = fs.Parse(args)
	if *oldDomain == "" || *newDomain == "" {
		log.Fatal("old-domain and new-domain are required")
	}

	dryRun := !*apply
	payload := map[string]any{
		"old_domain": *oldDomain,
		"new_domain": *newDomain,
		"dry_run":    dryRun,
	}

	var resp any
	if err := doJSON(ctx, client, http.MethodPost, baseURL+"/domains/migrate", apiKey, payload, &resp); err != nil {
		log.Fatalf("update-domain failed: %v", err)
	}
	printJSON(resp)
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("json: %v", err)
	}
	fmt.Println(string(b))
}

func printUsage() {
	fmt.Println(`usage: synctl series <create|list|get|update|delete|force-scan|retry|update-domain> [flags]`)
}

// Command ragctl is a small operator CLI for the HTTP Facade,
// implementing spec.md §6.1's bundled-CLI exit codes: 0 success, 2
// usage error, 3 config error, 4 upstream unavailable. No teacher file
// builds a CLI; cobra is the pack-wide convention for multi-subcommand
// Go CLIs, so ragctl follows that shape rather than a bespoke flag
// parser.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ragbackend/tenant"
)

const (
	exitUsageError    = 2
	exitConfigError   = 3
	exitUpstreamError = 4
)

var (
	serverURL string
	apiKey    string
	bearer    string
)

func main() {
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Operate a ragbackend deployment from the command line",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("RAGCTL_SERVER"), "base URL of the ragserver HTTP Facade")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("RAGCTL_API_KEY"), "X-API-Key credential")
	root.PersistentFlags().StringVar(&bearer, "token", os.Getenv("RAGCTL_TOKEN"), "bearer token credential")

	root.AddCommand(ingestCmd(), statusCmd(), queryCmd(), apikeyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsageError)
	}
}

func client() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

func applyAuth(req *http.Request) {
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
}

func ingestCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Upload a document for ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(serverURL) == "" {
				fmt.Fprintln(os.Stderr, "ragctl: --server is required")
				os.Exit(exitConfigError)
			}
			if filePath == "" {
				fmt.Fprintln(os.Stderr, "ragctl: --file is required")
				os.Exit(exitUsageError)
			}

			f, err := os.Open(filePath)
			if err != nil {
				fmt.Fprintln(os.Stderr, "ragctl:", err)
				os.Exit(exitUsageError)
			}
			defer f.Close()

			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			part, err := writer.CreateFormFile("file", filepath.Base(filePath))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, f); err != nil {
				return err
			}
			if err := writer.Close(); err != nil {
				return err
			}

			req, err := http.NewRequest(http.MethodPost, strings.TrimRight(serverURL, "/")+"/ingest", body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", writer.FormDataContentType())
			applyAuth(req)

			resp, err := client().Do(req)
			if err != nil {
				fmt.Fprintln(os.Stderr, "ragctl: upstream unavailable:", err)
				os.Exit(exitUpstreamError)
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to the file to ingest")
	return cmd
}

func statusCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch a job's ingestion status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobID == "" {
				fmt.Fprintln(os.Stderr, "ragctl: --job-id is required")
				os.Exit(exitUsageError)
			}
			req, err := newRequestSimple(http.MethodGet, "/ingest/"+jobID)
			if err != nil {
				return err
			}
			resp, err := client().Do(req)
			if err != nil {
				fmt.Fprintln(os.Stderr, "ragctl: upstream unavailable:", err)
				os.Exit(exitUpstreamError)
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id to look up")
	return cmd
}

func queryCmd() *cobra.Command {
	var query string
	var topK int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a retrieval-only query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				fmt.Fprintln(os.Stderr, "ragctl: --query is required")
				os.Exit(exitUsageError)
			}
			payload, _ := json.Marshal(map[string]any{"query": query, "top_k": topK})
			req, err := newRequestSimple(http.MethodPost, "/query")
			if err != nil {
				return err
			}
			req.Body = io.NopCloser(bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")

			resp, err := client().Do(req)
			if err != nil {
				fmt.Fprintln(os.Stderr, "ragctl: upstream unavailable:", err)
				os.Exit(exitUpstreamError)
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "query text")
	cmd.Flags().IntVar(&topK, "top-k", 5, "number of matches to return")
	return cmd
}

// apikeyCmd offers an offline `issue` subcommand: it never calls the
// server, since the signature is derived from the same shared secret
// the HTTP Facade validates against (tenant.SignAPIKey). A fresh
// random tenant id is generated unless one is supplied with --tenant.
func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage tenant API keys",
	}
	cmd.AddCommand(apikeyIssueCmd())
	return cmd
}

func apikeyIssueCmd() *cobra.Command {
	var tenantID string
	var secret string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint a new tenant API key offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("RAGCTL_AUTH_SECRET")
			}
			if secret == "" {
				fmt.Fprintln(os.Stderr, "ragctl: --secret or RAGCTL_AUTH_SECRET is required")
				os.Exit(exitConfigError)
			}
			if tenantID == "" {
				tenantID = uuid.NewString()
			}
			signature := tenant.SignAPIKey(tenantID, secret)
			fmt.Printf("%s.%s\n", tenantID, signature)
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id to issue the key for (random uuid if omitted)")
	cmd.Flags().StringVar(&secret, "secret", "", "shared auth secret, defaults to RAGCTL_AUTH_SECRET")
	return cmd
}

func newRequestSimple(method, path string) (*http.Request, error) {
	if strings.TrimSpace(serverURL) == "" {
		fmt.Fprintln(os.Stderr, "ragctl: --server is required")
		os.Exit(exitConfigError)
	}
	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	applyAuth(req)
	return req, nil
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		fmt.Fprintln(os.Stderr, string(data))
		os.Exit(exitUpstreamError)
	}
	fmt.Println(string(data))
	return nil
}

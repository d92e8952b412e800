package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Flags shared by every restaking command
const (
	FlagAPI    = "api"
	FlagAPIKey = "api-key"
	FlagFrom   = "from"

	DefaultAPI = "http://localhost:8080"
)

// APIError is the error body returned by the node API
type APIError struct {
	Code      uint32 `json:"code"`
	Codespace string `json:"codespace"`
	Message   string `json:"message"`
	Status    int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Codespace == "" {
		return fmt.Sprintf("%d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s/%d: %s", e.Codespace, e.Code, e.Message)
}

// Client talks to a running node over its REST API
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient creates a client for the API at base
func NewClient(base, apiKey string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// ClientFromCmd builds a client from the --api and --api-key flags
func ClientFromCmd(cmd *cobra.Command) *Client {
	base, _ := cmd.Flags().GetString(FlagAPI)
	key, _ := cmd.Flags().GetString(FlagAPIKey)
	return NewClient(base, key)
}

// Get decodes the JSON response of path into out
func (c *Client) Get(path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// Post sends body as JSON and decodes the response into out
func (c *Client) Post(path string, body, out interface{}) error {
	bz, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(bz))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bz, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(bz, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(bz))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(bz, out)
}

// AddClientFlags registers --api and --api-key
func AddClientFlags(cmd *cobra.Command) {
	cmd.Flags().String(FlagAPI, DefaultAPI, "node API address")
	cmd.Flags().String(FlagAPIKey, "", "API key for operator and admin routes")
}

func addSignerFlag(cmd *cobra.Command) {
	cmd.Flags().String(FlagFrom, "", "signer address")
	_ = cmd.MarkFlagRequired(FlagFrom)
}

// PrintJSON writes v indented to the command output
func PrintJSON(cmd *cobra.Command, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}

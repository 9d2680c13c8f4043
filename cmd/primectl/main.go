// Command primectl is the operator CLI for a running primed daemon: it
// talks to the monitoring HTTP surface (internal/httpapi) over plain
// net/http, the same way an operator dashboard would. Grounded on
// cmd/bd's cobra root (persistent flags, one var-per-subcommand `init()`
// registration) generalized from a local-storage CLI to a thin REST
// client, since primed's state lives behind the daemon process rather
// than in a file this CLI could open directly.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	addr    string
	token   string
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "primectl",
	Short: "primectl - operator CLI for a running primed daemon",
	Long:  `Inspect and drive connected daemons through primed's monitoring HTTP surface.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:7080", "primed HTTP address")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("PRIME_HTTP_TOKEN"), "Bearer token for the monitoring surface (default: $PRIME_HTTP_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Pretty-print raw JSON responses")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// client is a small wrapper the subcommands below share; it is not meant
// to be a general-purpose SDK, only enough surface for this CLI.
type client struct {
	http    *http.Client
	baseURL string
	token   string
}

func newClient() *client {
	return &client{http: &http.Client{Timeout: 30 * time.Second}, baseURL: strings.TrimRight(addr, "/"), token: token}
}

func (c *client) do(method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// printResponse renders a raw response body, pretty-printing it as JSON
// when it parses as such.
func printResponse(status int, body []byte) error {
	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		fmt.Println(string(body))
		if status >= 400 {
			return fmt.Errorf("request failed with status %d", status)
		}
		return nil
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(generic); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("request failed with status %d", status)
	}
	return nil
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check primed's liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := newClient().do(http.MethodGet, "/health", nil)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Inspect and drive connected daemons",
}

var daemonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected daemons",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := newClient().do(http.MethodGet, "/api/daemon/list", nil)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

var daemonInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Aggregate connection counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := newClient().do(http.MethodGet, "/api/daemon/connection-info", nil)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

var daemonShowCmd = &cobra.Command{
	Use:   "show <daemon-id>",
	Short: "Show one connected daemon's handle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := newClient().do(http.MethodGet, "/api/daemon/"+args[0], nil)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

var daemonByNameCmd = &cobra.Command{
	Use:   "by-name <name>",
	Short: "Look up a connected daemon by its registered name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := newClient().do(http.MethodGet, "/api/daemon/by-name/"+args[0], nil)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

var daemonPingCmd = &cobra.Command{
	Use:   "ping <daemon-id>",
	Short: "Round-trip ping a connected daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := newClient().do(http.MethodPost, "/api/daemon/"+args[0]+"/ping", nil)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

var (
	executeWorkingDir string
	executeTimeout    int
	executeUseSudo    bool
)

var daemonExecuteCmd = &cobra.Command{
	Use:   "execute <daemon-id> <command>",
	Short: "Run a shell command on a connected daemon",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{
			"command":           args[1],
			"working_directory": executeWorkingDir,
			"timeout":           executeTimeout,
			"use_sudo":          executeUseSudo,
		}
		status, body, err := newClient().do(http.MethodPost, "/api/daemon/"+args[0]+"/execute", req)
		if err != nil {
			return err
		}
		return printResponse(status, body)
	},
}

func init() {
	daemonExecuteCmd.Flags().StringVar(&executeWorkingDir, "cwd", "", "Working directory for the command")
	daemonExecuteCmd.Flags().IntVar(&executeTimeout, "timeout", 0, "Timeout in seconds (0 = server default)")
	daemonExecuteCmd.Flags().BoolVar(&executeUseSudo, "sudo", false, "Run the command with elevated privileges")

	daemonCmd.AddCommand(daemonListCmd, daemonInfoCmd, daemonShowCmd, daemonByNameCmd, daemonPingCmd, daemonExecuteCmd)
	rootCmd.AddCommand(healthCmd, daemonCmd)
}

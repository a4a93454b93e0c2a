package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Client commands talk to a running server so scripts and operators
// can poke the store without writing JSON by hand.

const defaultServerURL = "http://127.0.0.1:8000"

var (
	flagServer string
	flagAPIKey string
	flagTopK   int
)

func init() {
	for _, cmd := range []*cobra.Command{storeCmd, retrieveCmd, forgetCmd, statsCmd, sweepCmd} {
		cmd.Flags().StringVar(&flagServer, "server", "", "server URL (default $MEMORYBANK_URL or "+defaultServerURL+")")
		cmd.Flags().StringVar(&flagAPIKey, "api-key", "", "bearer token (default $API_KEY)")
	}
	retrieveCmd.Flags().IntVar(&flagTopK, "top-k", 0, "number of memories to retrieve (default server-side)")
}

var storeCmd = &cobra.Command{
	Use:   "store <content>",
	Short: "Store a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call("POST", "/store_memory", map[string]any{"content": args[0]})
	},
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve memories by semantic similarity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := map[string]any{"query": args[0]}
		if flagTopK > 0 {
			req["top_k"] = flagTopK
		}
		return call("POST", "/retrieve_memory", req)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <memory-id>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return call("POST", "/forget_memory", map[string]any{"memory_id": args[0]})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return call("GET", "/memory_stats", nil)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a forgetting sweep now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		maintenance, _ := cmd.Flags().GetBool("maintenance")
		return call("POST", "/run_forgetting_curve", map[string]any{"maintenance": maintenance})
	},
}

func init() {
	sweepCmd.Flags().Bool("maintenance", false, "run the maintenance sweep instead of plain decay")
}

func serverURL() string {
	if flagServer != "" {
		return flagServer
	}
	if url := os.Getenv("MEMORYBANK_URL"); url != "" {
		return url
	}
	return defaultServerURL
}

func apiKey() string {
	if flagAPIKey != "" {
		return flagAPIKey
	}
	return os.Getenv("API_KEY")
}

// call sends one request and prints the JSON response, indented, to
// stdout. Non-2xx responses become errors carrying the server's body.
func call(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, serverURL()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := apiKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: %s: %s", path, resp.Status, bytes.TrimSpace(raw))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

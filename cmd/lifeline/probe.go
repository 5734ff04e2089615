package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:       "probe [health|live|ready]",
	Short:     "Query a probe of a running service",
	Long:      "Request a probe endpoint and exit non-zero when it fails. Usable as an exec probe.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"health", "live", "ready"},
	RunE:      runProbe,
}

var (
	probeAddr    string
	probeTimeout time.Duration
)

func init() {
	probeCmd.Flags().StringVar(&probeAddr, "addr", "127.0.0.1:9000", "Address of the probe server")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 2*time.Second, "Request timeout")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: probeTimeout}
	url := fmt.Sprintf("http://%s/%s", probeAddr, args[0])

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	reason := strings.TrimSpace(string(body))

	fmt.Fprintln(cmd.OutOrStdout(), reason)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s probe failed: %s", args[0], reason)
	}
	return nil
}

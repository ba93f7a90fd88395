package main

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

var (
	probeURL      string
	probeToken    string
	probeQuestion string
	probeCourse   string
	probeTimeout  time.Duration
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check a running server's health and optionally ask it a question",
	Example: `  instant-tutor probe --url http://localhost:8000
  instant-tutor probe --url http://localhost:8000 --token $TUTOR_TOKEN`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().StringVar(&probeURL, "url", "http://localhost:8000", "server base URL")
	probeCmd.Flags().StringVar(&probeToken, "token", "", "bearer token; when set a sample query is sent")
	probeCmd.Flags().StringVar(&probeQuestion, "query", "What is the derivative of x squared?", "question for the sample query")
	probeCmd.Flags().StringVar(&probeCourse, "course", "MATH_101", "course id for the sample query")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 30*time.Second, "per request timeout")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	client := &http.Client{Timeout: probeTimeout}
	base := strings.TrimRight(probeURL, "/")
	out := cmd.OutOrStdout()

	resp, err := client.Get(base + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	body, err := readProbeBody(resp)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "GET /health -> %d\n%s\n", resp.StatusCode, body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}

	if probeToken == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"query":     probeQuestion,
		"course_id": probeCourse,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/api/query", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+probeToken)

	resp, err = client.Do(req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	body, err = readProbeBody(resp)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "POST /api/query -> %d\n%s\n", resp.StatusCode, body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query returned %d", resp.StatusCode)
	}
	return nil
}

func readProbeBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		return pretty.String(), nil
	}
	return string(raw), nil
}

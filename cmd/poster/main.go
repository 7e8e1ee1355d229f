// Command poster sends one HTTP POST to a listener's poster endpoint,
// grounded on original_source/eventsource/request.py's send_string /
// send_json. Exit code 0 on success, 1 on request failure or an
// unparsable numeric flag (spec §6).
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/guyzmo/ssemux/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags, err := config.ParsePosterFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	url := strings.TrimRight(flags.URL, "/") + "/" + flags.Action + "/" + flags.Target

	ctx, cancel := context.WithTimeout(context.Background(), flags.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(flags.Data))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error building request:", err)
		return 1
	}
	if flags.JSON {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Content-Type", "text/plain")
	}
	if flags.Token != "" {
		req.Header.Set("Authorization", "Bearer "+flags.Token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		return 1
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "request failed: HTTP %d: %s\n", resp.StatusCode, string(body))
		return 1
	}

	fmt.Println("ok")
	return 0
}

// realtime streams AWS AppSync realtime subscriptions to the console.
//
// Usage:
//
//	realtime subscribe --config configs/realtime.example.yaml
//	realtime subscribe queries/market_line_update.graphql
//	realtime query --query-file queries/market_line_updates.graphql
//
// Without --config the endpoint is read from the environment:
//
//	REALTIME_API_HOST   - AppSync API host
//	REALTIME_API_KEY    - API key, sent as Authorization
//	REALTIME_API_REGION - AWS region
//	DATA_API_URL        - Data API base URL for --snapshot
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

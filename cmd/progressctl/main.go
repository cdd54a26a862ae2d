// Command progressctl runs the progress API and its maintenance tasks.
//
//	progressctl serve      # HTTP API
//	progressctl migrate    # apply database migrations
//	progressctl seed       # write the achievement catalog to storage
//	progressctl stats ID   # print a learner's dashboard as JSON
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

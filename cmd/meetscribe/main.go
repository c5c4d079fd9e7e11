// meetscribe records meetings through OBS, transcribes them with WhisperX,
// and produces LLM analysis documents.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

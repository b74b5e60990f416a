// Command karen-secret prints a random hex secret suitable for the
// auth.api_keys config entry.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "generate secret: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hex.EncodeToString(buf))
}

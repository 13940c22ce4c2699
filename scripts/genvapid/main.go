// genvapid generates a P-256 VAPID key pair for Web Push.
//
// Usage (run from the repo root):
//
//	go run scripts/genvapid/main.go
//
// Writes data/vapid.env (mode 0600) with VAPID_PUBLIC_KEY and
// VAPID_PRIVATE_KEY in the base64url form the server and browsers expect.
// Copy the lines into .env. Rotating the keys invalidates every existing
// browser subscription, so the script refuses to overwrite the file.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashita-ai/xiaoban/internal/push"
)

func main() {
	dir := "data"
	path := filepath.Join(dir, "vapid.env")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot create %s: %v\n", dir, err)
		os.Exit(1)
	}
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "error: %s already exists; delete it first if you want to rotate keys\n", path)
		os.Exit(1)
	}

	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: generate keys: %v\n", err)
		os.Exit(1)
	}

	content := fmt.Sprintf("VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\nVAPID_SUBJECT=mailto:you@example.com\n", pub, priv)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "error: write %s: %v\n", path, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s\n", path)
	fmt.Printf("public key (for the browser): %s\n", pub)
}

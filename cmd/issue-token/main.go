// issue-token prints a bearer token for a user id, for local development
// against the API. It signs with API_SECRET, like the server.
package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/brewery_backend/utils"
)

func main() {
	userID := flag.Int("user", 0, "Required: user id the token acts as")
	username := flag.String("username", "", "Optional: username claim")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(1)
	}

	token, err := utils.JwtGenerate(*userID, *username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

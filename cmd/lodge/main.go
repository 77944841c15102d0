// Command lodge runs the refresh-token session server.
package main

import (
	"log"

	"lodge/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}

// Command featurehub-demo connects to a FeatureHub edge service, polls
// for feature state, and evaluates a couple of flags for a sample
// request context.
package main

import (
	"log"
	"time"

	"github.com/Sidd-007/featurehub-go-sdk"
)

func main() {
	client, err := featurehub.NewClient(featurehub.ClientOptions{
		EdgeURL:   "http://localhost:8553/",
		APIKeys:   []string{"default/1234-5678-abcd"},
		PollEvery: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	if !client.IsReady() {
		log.Println("repository not ready after initial poll; continuing with defaults")
	}

	ctx := client.NewContext().
		UserKey("user-123").
		Country("NZ").
		Platform("web")

	if err := ctx.Build(); err != nil {
		log.Fatalf("failed building context: %v", err)
	}
	defer ctx.Close()

	if ctx.IsEnabled("new-checkout-flow") {
		log.Println("new-checkout-flow is enabled for this user")
	} else {
		log.Println("new-checkout-flow is disabled for this user")
	}

	if greeting := ctx.GetString("welcome-message"); greeting != nil {
		log.Printf("welcome-message: %s", *greeting)
	}
}

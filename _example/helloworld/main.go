// Command helloworld is a minimal lambdahost function: it greets the name
// given in the event and logs a line on Init and Shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	lambdahost "github.com/lambdahost/runtime"
	"github.com/lambdahost/runtime/core/handlerbuild"
	"github.com/lambdahost/runtime/core/lifecycle"
)

type request struct {
	Name string `json:"name"`
}

type response struct {
	Message string `json:"message"`
}

func greet(req request) (response, error) {
	if req.Name == "" {
		return response{}, fmt.Errorf("name is required")
	}
	return response{Message: "Hello " + req.Name + "!"}, nil
}

func main() {
	handler, err := handlerbuild.Compose(greet, []handlerbuild.ParamSpec{
		handlerbuild.FromEvent[request](),
	})
	if err != nil {
		log.Fatal(err)
	}

	err = lambdahost.RunFromEnv(context.Background(), func(h *lambdahost.Host) {
		h.OnInit(func(ctx context.Context, props *lifecycle.Properties) (bool, error) {
			props.Set("started_at", time.Now())
			log.Println("helloworld: init complete")
			return true, nil
		})
		h.OnShutdown(func(ctx context.Context) error {
			log.Println("helloworld: shutting down")
			return nil
		})
		h.Handle(handler)
	})
	if err != nil {
		log.Fatal(err)
	}
}

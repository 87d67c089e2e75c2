package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"staylink/internal/api"
	"staylink/internal/validate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if app != nil {
		app.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", describe(err))
		os.Exit(1)
	}
}

// describe turns client errors into the message a user should see.
func describe(err error) string {
	var fe *validate.FieldError
	if errors.As(err, &fe) {
		return fe.Message
	}
	if apiErr, ok := api.AsError(err); ok {
		// A missing session already printed the login hint.
		if apiErr.ForceLogout {
			return apiErr.Message + " (run `stay login`)"
		}
		return apiErr.Message
	}
	return err.Error()
}

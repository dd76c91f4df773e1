package main

import (
	"context"
	"os"

	"github.com/KevinKickass/et7000d/cmd/et7000d/app"
)

func main() {
	if err := app.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

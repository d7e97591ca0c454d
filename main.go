package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JingyuanHe1222/blended-latent-diffusion/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(cmd.NewCLI().ExecuteContext(ctx))
}

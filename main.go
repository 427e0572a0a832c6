package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/edgerun/edgerun/cmd"
	_ "github.com/edgerun/edgerun/ml/backend/hexagon"
	_ "github.com/edgerun/edgerun/ml/backend/treelite"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}

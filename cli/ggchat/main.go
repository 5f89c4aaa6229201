package main

import (
	"fmt"
	"os"

	ggchatcmder "github.com/papercomputeco/ggchat/cmd/ggchat"
	"github.com/papercomputeco/ggchat/pkg/cliui"
)

func main() {
	cmd := ggchatcmder.NewGGChatCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\n  %s %v\n\n", cliui.Mark(err), err)
		os.Exit(1)
	}
}

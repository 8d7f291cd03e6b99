package main

import (
	"github.com/omnipost/publisher/internal/cli"
)

func main() {
	cli.Execute()
}

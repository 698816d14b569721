package main

import (
	"github.com/zrma/melcep/internal/cli"
)

func main() {
	cli.Execute()
}

package main

import (
	_ "time/tzdata"

	"github.com/example/octiv-sniper/cmd"
)

func main() {
	cmd.Execute()
}

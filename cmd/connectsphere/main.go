package main

import "github.com/rudransh-shrivastava/connectsphere/internal/cli"

func main() {
	cli.Execute()
}

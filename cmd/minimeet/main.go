package main

import "github.com/Prince200510/mini-meet-prince/internal/cli"

func main() {
	cli.Execute()
}

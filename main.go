package main

import (
	"github.com/ItalyPaleAle/rss-digest/cmd"
)

func main() {
	cmd.Execute()
}

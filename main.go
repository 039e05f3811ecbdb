package main

import (
	"log"

	"github.com/YossiGold99/PartyFlow-V2/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}

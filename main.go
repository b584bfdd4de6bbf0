package main

import (
	"log"

	"kuji-system/cmd"
	_ "kuji-system/migrations"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}

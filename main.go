package main

import (
	"log"

	"github.com/Klodi1379/LogiSys-Pro/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

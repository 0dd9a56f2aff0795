package main

import (
	"log"

	nexusagentd "nexuschain/services/nexusagentd"
)

func main() {
	if err := nexusagentd.Main(); err != nil {
		log.Fatalf("nexusagentd: %v", err)
	}
}

package main

import (
	"log"

	nexuschaind "nexuschain/services/nexuschaind"
)

func main() {
	if err := nexuschaind.Main(); err != nil {
		log.Fatalf("nexuschaind: %v", err)
	}
}

package main

import (
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load() //nolint:errcheck

	LogInfo("Egg Media Server (Version 1.0.0)")

	config := LoadServerConfig()

	server := CreateRTMPServer(config)

	go setupRedisCommandReceiver(server)

	if !server.Bind() {
		return
	}

	server.Start()
}

package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/focusbot/app"
	"github.com/m3rciful/focusbot/app/config"
	corecmd "github.com/m3rciful/focusbot/core/cmd"
)

func main() {
	_ = godotenv.Load()

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("focusbot: %v", err)
	}
}

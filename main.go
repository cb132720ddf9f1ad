package main

import (
	"log"

	"provisioner/config"
	dbpkg "provisioner/db"
	"provisioner/router"
	"provisioner/workers"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env é opcional (dev local); em produção tudo vem do ambiente.
	_ = godotenv.Load()

	cfg := config.Load()

	database, err := dbpkg.Connect(cfg)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer database.Close()

	// Worker único drenando o event store em background. Ingress e worker só
	// se falam por ele — veja workers.Processor.
	workers.StartEventProcessor(database, cfg)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(database))
	router.Initialize(r, cfg)

	addr := cfg.Host + ":" + cfg.Port
	log.Printf("provisioner listening on %s", addr)
	log.Fatal(r.Run(addr))
}

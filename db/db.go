package db

import (
	"log"
	"os"
	"path/filepath"

	"provisioner/config"
	"provisioner/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// Connect abre conexão com DB (sqlite3 por padrão) e roda o automigrate.
// O caminho do arquivo sqlite vem da config; o diretório é criado se faltar.
func Connect(conf config.Configuration) (*gorm.DB, error) {
	var (
		database *gorm.DB
		err      error
	)

	if conf.Database == "postgres" || conf.Database == "postgresql" {
		log.Println("Utilizando conexão com o postgresql...")
		path := "host=" + conf.DbHost + " port=" + conf.DbPort
		path += " user=" + conf.DbUser + " dbname=" + conf.DbName
		path += " password=" + conf.DbPass
		database, err = gorm.Open("postgres", path)
	} else {
		log.Println("Utilizando conexão com o sqlite3...")
		if dir := filepath.Dir(conf.DBPath); dir != "." {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, mkErr
			}
		}
		database, err = gorm.Open("sqlite3", conf.DBPath)
	}

	if err != nil {
		log.Println("Got error when connect database, the error is: " + err.Error())
		return nil, err
	}

	database.AutoMigrate(
		&models.Event{},
		&models.Mapping{},
	)

	return database, nil
}

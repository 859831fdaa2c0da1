package database

import (
	"fmt"
	"log"
	"safetrain_backend/internal/config"
	"safetrain_backend/internal/model"
	"safetrain_backend/internal/util"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func InitDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
		cfg.ParseTime,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})

	if err != nil {
		return nil, err
	}

	log.Println("Database connection established")

	err = db.AutoMigrate(
		&model.User{},
		&model.Course{},
		&model.CourseVersion{},
		&model.CourseNode{},
		&model.CourseEdge{},
		&model.Nationality{},
		&model.TrainingSession{},
		&model.Attendee{},
	)

	if err != nil {
		return nil, err
	}

	log.Println("Database migration completed")

	// Seed the closed nationality code set on first boot.
	var count int64
	db.Model(&model.Nationality{}).Count(&count)
	if count == 0 {
		for code, name := range util.Nationalities {
			db.Create(&model.Nationality{Code: code, Name: name, Enabled: true})
		}
	}

	return db, nil
}

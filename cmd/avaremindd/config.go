package main

import (
	"fmt"

	"avaremind-backend/services/reminder"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type DatabaseConfig struct {
	// "postgres" in production; "sqlite" for local hacking
	Driver string `json:"driver"`
	Dsn    string `json:"dsn"`
}

func (c DatabaseConfig) Open() (*gorm.DB, error) {
	switch c.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(c.Dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(c.Dsn), &gorm.Config{})
	}
	return nil, fmt.Errorf("unknown database driver %q", c.Driver)
}

type DaemonConfig struct {
	Portal        reminder.PortalConfig `json:"portal"`
	Smtp          reminder.SmtpConfig   `json:"smtp"`
	Database      DatabaseConfig        `json:"database"`
	PublicBaseUrl string                `json:"public_base_url"`
	PoolCapacity  int                   `json:"pool_capacity"`
	Verbose       bool                  `json:"verbose"`
}

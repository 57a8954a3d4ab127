// Package version хранит сведения о сборке, заполняемые через -ldflags.
package version

import "fmt"

// Service — имя сервиса в логах, health-ответах и событиях.
const Service = "inventory-service"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// Fields — сведения о сборке для структурированных логов.
func Fields() map[string]interface{} {
	return map[string]interface{}{
		"service": Service,
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}

func String() string {
	return fmt.Sprintf("%s version=%s commit=%s date=%s", Service, version, commit, date)
}

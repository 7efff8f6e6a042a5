package env

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv returns a configuration value, preferring the loaded .env
// file over the process environment.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvInt reads an integer value, falling back to def when the value
// is missing or not a number.
func GetEnvInt(key string, def int) int {
	val := GetEnv(key, "")
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %d", key, val, def)
		return def
	}
	return n
}

// SetupEnvFile loads the .env file from the working directory or the
// project root. Containers usually have no file and pass everything
// through the process environment, so a missing file is not fatal.
func SetupEnvFile() {
	envFiles := []string{
		".env",
		"../../.env", // from cmd/velobill
	}

	for _, envFile := range envFiles {
		if loaded, err := godotenv.Read(envFile); err == nil {
			Env = loaded
			return
		}
	}

	log.Println("No .env file found, relying on the process environment")
	Env = map[string]string{}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

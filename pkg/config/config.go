package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App   AppConfig
	DB    DBConfig
	HTTP  HTTPConfig
	SIFEN SIFENConfig
}

// SIFENConfig configuración para facturación electrónica SIFEN (Paraguay, e-Kuatia).
type SIFENConfig struct {
	Environment  string        // "test" (habilitación) o "prod" (producción)
	TestURL      string        // Base URL del ambiente de pruebas SET
	ProdURL      string        // Base URL del ambiente de producción SET
	CertPath     string        // Ruta al contenedor .p12/.pfx del emisor
	CertPassword string        // Contraseña del .p12 (vacía si no está protegido)
	RootCAPath   string        // Bundle PEM con la raíz de confianza de la SET (obligatorio en prod)
	Timeout      time.Duration // Timeout por llamada al WS
	MaxRetries   int           // Reintentos ante fallo transitorio de red
	BatchSize    int           // Tamaño máximo de lote (la SET admite 15)
}

// IsProduction indica si se apunta al ambiente productivo de la SET.
func (c SIFENConfig) IsProduction() bool {
	return c.Environment == "prod"
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo .env).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, SIFEN_ENV, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "sifen-api"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "sifen"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SIFEN: SIFENConfig{
			Environment:  getString(v, "SIFEN_ENV", "test"),
			TestURL:      getString(v, "SIFEN_TEST_URL", "https://sifen-test.set.gov.py/de/ws/"),
			ProdURL:      getString(v, "SIFEN_PROD_URL", "https://sifen.set.gov.py/de/ws/"),
			CertPath:     getString(v, "SIFEN_CERT_PATH", ""),
			CertPassword: getString(v, "SIFEN_CERT_PASSWORD", ""),
			RootCAPath:   getString(v, "SIFEN_ROOT_CA_PATH", ""),
			Timeout:      time.Duration(getInt(v, "SIFEN_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetries:   getInt(v, "SIFEN_MAX_RETRY", 3),
			BatchSize:    getInt(v, "SIFEN_BATCH_SIZE", 15),
		},
	}

	if cfg.SIFEN.Environment != "test" && cfg.SIFEN.Environment != "prod" {
		return nil, fmt.Errorf("config: SIFEN_ENV inválido %q (usar 'test' o 'prod')", cfg.SIFEN.Environment)
	}
	if cfg.SIFEN.BatchSize < 1 || cfg.SIFEN.BatchSize > 15 {
		return nil, fmt.Errorf("config: SIFEN_BATCH_SIZE fuera de rango (1..15): %d", cfg.SIFEN.BatchSize)
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

package config // package config loads application configuration from environment variables

import (
    "log"     // log is used to report configuration errors and halt execution
    "os"      // os provides access to environment variables
    "strconv" // strconv converts strings to other types
    "strings"

    "github.com/joho/godotenv" // optional .env file support for local runs
)

// Database drivers understood by database.Open.
const (
    DriverMySQL  = "mysql"
    DriverSQLite = "sqlite"
)

// Config holds all runtime configuration values of the portal API.  Each
// field corresponds to an environment variable.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBDriver       string // "mysql" (default) or "sqlite"
    DBUser         string // database username (mysql)
    DBPass         string // database password (optional)
    DBHost         string // database host address (mysql)
    DBPort         string // database port number (mysql)
    DBName         string // database name (mysql)
    SQLitePath     string // database file (sqlite)
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing
    UploadDir      string // directory backing the local object store
    PublicBaseURL  string // prefix for URLs handed out by the object store
    AdminEmail     string // seeded admin account (optional)
    AdminPassword  string // seeded admin password (optional)
    AdminName      string
    BrokerURL       string // RabbitMQ URL; empty disables activity publishing
    ConsumerEnabled bool   // run the activity consumer inside the API process
    ActivityLogDir  string // directory the activity consumer appends to
    SMTP            SMTPConfig
}

// Load reads configuration values from the environment (and a .env file when
// present) and returns a Config.  Required variables are enforced by must()
// and missing values cause the program to exit with a fatal log message.
func Load() Config {
    _ = godotenv.Load()

    cfg := Config{
        Env:             must("APP_ENV"),
        Port:            must("APP_PORT"),
        DBDriver:        strings.ToLower(envStr("DB_DRIVER", DriverMySQL)),
        DBPass:          os.Getenv("DB_PASS"), // empty allowed
        JWTSecret:       must("JWT_SECRET"),
        AccessTTLMin:    mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays:  mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:      mustInt("BCRYPT_COST"),
        UploadDir:       envStr("UPLOAD_DIR", "uploads"),
        PublicBaseURL:   strings.TrimRight(envStr("PUBLIC_BASE_URL", ""), "/"),
        AdminEmail:      os.Getenv("ADMIN_EMAIL"),
        AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
        AdminName:       envStr("ADMIN_NAME", "Agency Admin"),
        BrokerURL:       envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
        ConsumerEnabled: envBool("ACTIVITY_CONSUMER_ENABLED", false),
        ActivityLogDir:  envStr("ACTIVITY_LOG_DIR", "logs"),
        SMTP:            LoadSMTPConfig(),
    }
    // Connection details are only mandatory for the driver in use.
    switch cfg.DBDriver {
    case DriverSQLite:
        cfg.SQLitePath = envStr("SQLITE_PATH", "portal.db")
    case DriverMySQL:
        cfg.DBUser = must("DB_USER")
        cfg.DBHost = must("DB_HOST")
        cfg.DBPort = must("DB_PORT")
        cfg.DBName = must("DB_NAME")
    default:
        log.Fatalf("unsupported DB_DRIVER: %q", cfg.DBDriver)
    }
    return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the attendance client.  Every
// value is optional; defaults reproduce the behaviour of the web client the
// backend was built for (30 second credentials, 5 fps camera, 30 second
// heartbeat, 3 second confirmation delay).
type Config struct {
	Env               string        // application environment (development, production)
	LogLevel          string        // zap level override, empty for the env default
	APIBaseURL        string        // REST base address, trailing slash included
	WSBaseURL         string        // live channel base address (ws:// or wss://)
	QRWindow          time.Duration // issuance countdown window
	HeartbeatInterval time.Duration // live channel ping interval
	CameraFPS         int           // camera decode attempts per second
	RedirectDelay     time.Duration // delay between confirmation and dashboard redirect
	TokenStore        string        // memory, file or redis
	TokenDir          string        // directory of the file token store
	TokenProfile      string        // key of the redis token store entry
	Redis             RedisConfig   // redis token store settings
}

// Load reads the client configuration.  A .env file in the working directory
// is applied first when present; real environment variables win over it.
func Load() Config {
	loadDotEnv()
	api := ensureSlash(envStr("API_BASE_URL", "http://127.0.0.1:8000/"))
	cfg := Config{
		Env:               envStr("APP_ENV", "development"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		APIBaseURL:        api,
		WSBaseURL:         strings.TrimRight(envStr("WS_BASE_URL", wsFromHTTP(api)), "/"),
		QRWindow:          envDur("QR_WINDOW", 30*time.Second),
		HeartbeatInterval: envDur("HEARTBEAT_INTERVAL", 30*time.Second),
		CameraFPS:         envInt("CAMERA_FPS", 5),
		RedirectDelay:     envDur("REDIRECT_DELAY", 3*time.Second),
		TokenStore:        strings.ToLower(envStr("TOKEN_STORE", "file")),
		TokenDir:          envStr("TOKEN_DIR", defaultTokenDir()),
		TokenProfile:      envStr("TOKEN_PROFILE", "default"),
		Redis:             LoadRedisConfig(),
	}
	if cfg.CameraFPS < 1 {
		cfg.CameraFPS = 1
	}
	if cfg.QRWindow < time.Second {
		cfg.QRWindow = time.Second
	}
	return cfg
}

// ServerConfig holds the configuration of the development backend.  APP_PORT
// and JWT_SECRET are required; everything else has a default.  When DBHost is
// empty the backend runs on a seeded in-memory store.
type ServerConfig struct {
	Env            string        // application environment
	Port           string        // HTTP port to listen on
	JWTSecret      string        // secret used to sign access tokens
	QRSecret       string        // secret used to sign attendance credentials
	AccessTTLMin   int           // access token time-to-live in minutes
	RefreshTTLDays int           // refresh token time-to-live in days
	QRTTL          time.Duration // credential validity window
	BcryptCost     int           // bcrypt cost for seeded passwords
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address, empty for memory store
	DBPort         string        // database port number
	DBName         string        // database name
	AMQPURL        string        // broker address, empty disables publishing
	Redis          RedisConfig   // used-credential ledger and login throttle
	LoginLimit     RateLimitConfig
}

// RateLimitConfig tunes the Redis token bucket in front of login.
type RateLimitConfig struct {
	Enabled        bool          // LOGIN_RATE_ENABLED
	Prefix         string        // redis key prefix
	Capacity       int           // bucket size
	RefillTokens   int           // tokens added per interval
	RefillInterval time.Duration // refill period
	TTL            time.Duration // idle bucket expiry
	KeyStrategy    string        // ip, user, route or ip_route
}

// LoadServer reads the backend configuration.  Missing required values cause
// the program to exit with a fatal log message.
func LoadServer() ServerConfig {
	loadDotEnv()
	secret := must("JWT_SECRET")
	amqpURL := os.Getenv("RABBITMQ_URL")
	if amqpURL == "" {
		amqpURL = os.Getenv("AMQP_URL")
	}
	return ServerConfig{
		Env:            envStr("APP_ENV", "development"),
		Port:           must("APP_PORT"),
		JWTSecret:      secret,
		QRSecret:       envStr("QR_SECRET", secret),
		AccessTTLMin:   envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		QRTTL:          envDur("QR_TTL", 30*time.Second),
		BcryptCost:     envInt("BCRYPT_COST", 10),
		DBUser:         os.Getenv("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         envStr("DB_NAME", "asistencia"),
		AMQPURL:        amqpURL,
		Redis:          LoadRedisConfig(),
		LoginLimit: RateLimitConfig{
			Enabled:        envBool("LOGIN_RATE_ENABLED", true),
			Prefix:         envStr("LOGIN_RATE_PREFIX", "qr:rl"),
			Capacity:       envInt("LOGIN_RATE_CAPACITY", 10),
			RefillTokens:   envInt("LOGIN_RATE_REFILL", 1),
			RefillInterval: envDur("LOGIN_RATE_INTERVAL", 6*time.Second),
			TTL:            envDur("LOGIN_RATE_TTL", 10*time.Minute),
			KeyStrategy:    envStr("LOGIN_RATE_KEY", "ip"),
		},
	}
}

// loadDotEnv applies .env when it exists.  A missing file is not an error.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring .env: %v", err)
	}
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

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envBool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

// envDur accepts Go durations ("30s") and bare integers meaning seconds.
func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return d
}

func ensureSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// wsFromHTTP derives the live channel base from the REST base by swapping the
// scheme and dropping the path.
func wsFromHTTP(api string) string {
	rest := api
	scheme := "ws://"
	switch {
	case strings.HasPrefix(api, "https://"):
		rest = strings.TrimPrefix(api, "https://")
		scheme = "wss://"
	case strings.HasPrefix(api, "http://"):
		rest = strings.TrimPrefix(api, "http://")
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return scheme + rest
}

func defaultTokenDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".qr-attendance"
	}
	return home + string(os.PathSeparator) + ".qr-attendance"
}

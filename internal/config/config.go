package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret      string
	JWTExpireHours int

	// API
	APIPort int

	// Push provider
	FCMCredentialsFile string

	// Notification engine
	DailyNotificationLimit  int // non-critical notifications per recipient per day
	EscalationTimeoutHours  int // hours a CRITICAL alert may stay unacknowledged
	EscalationSweepMinutes  int // escalation sweep period
	SyncBatchSize           int // sync reconciler batch size
	MaxDeliveryAttempts     int // attempts before a notification is left FAILED
	PushTimeoutSeconds      int // per provider call
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a timestamp-based approach if crypto/rand fails
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32) // 64 character hex string
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Sessions will not persist across restarts.")
	}

	// Database password - warn if using default
	dbPassword := getEnv("DB_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD not set - this is insecure for production!")
		dbPassword = "changeme"
	}

	// Redis password - warn if using default
	redisPassword := getEnv("REDIS_PASSWORD", "")
	if redisPassword == "" {
		log.Println("WARNING: REDIS_PASSWORD not set - Redis is not secured!")
	}

	fcmCredentials := getEnv("FCM_CREDENTIALS_FILE", "")
	if fcmCredentials == "" {
		log.Println("WARNING: FCM_CREDENTIALS_FILE not set - push delivery disabled until configured")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "crewops"),
		DBPassword: dbPassword,
		DBName:     getEnv("DB_NAME", "crewops"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: redisPassword,

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168), // 7 days default

		// API
		APIPort: getEnvInt("API_PORT", 8080),

		// Push provider
		FCMCredentialsFile: fcmCredentials,

		// Notification engine
		DailyNotificationLimit: getEnvInt("NOTIFY_DAILY_LIMIT", 10),
		EscalationTimeoutHours: getEnvInt("ESCALATION_TIMEOUT_HOURS", 2),
		EscalationSweepMinutes: getEnvInt("ESCALATION_SWEEP_MINUTES", 15),
		SyncBatchSize:          getEnvInt("SYNC_BATCH_SIZE", 50),
		MaxDeliveryAttempts:    getEnvInt("MAX_DELIVERY_ATTEMPTS", 3),
		PushTimeoutSeconds:     getEnvInt("PUSH_TIMEOUT_SECONDS", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

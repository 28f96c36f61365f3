package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

type TrackingConfig struct {
	Timezone          *time.Location
	SpeedLimitKmh     float64
	HistoryDays       int
	HistoryMaxLimit   int
	BatchMaxSamples   int
	PaymentTokenTTL   time.Duration
	SettlementBICCode string
}

func LoadTrackingConfig() *TrackingConfig {
	tz := getEnv("TRACKING_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("[CONFIG] Unknown timezone %q, falling back to server local time: %v", tz, err)
		loc = time.Local
	}

	return &TrackingConfig{
		Timezone:          loc,
		SpeedLimitKmh:     getEnvAsFloat("TRACKING_SPEED_LIMIT_KMH", 90),
		HistoryDays:       getEnvAsInt("TRACKING_HISTORY_DAYS", 30),
		HistoryMaxLimit:   getEnvAsInt("TRACKING_HISTORY_MAX_LIMIT", 100),
		BatchMaxSamples:   getEnvAsInt("TRACKING_BATCH_MAX_SAMPLES", 100),
		PaymentTokenTTL:   getEnvAsDuration("PAYMENT_TOKEN_TTL", 30*time.Minute),
		SettlementBICCode: getEnv("SETTLEMENT_BIC_CODE", "FLEETTRK"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

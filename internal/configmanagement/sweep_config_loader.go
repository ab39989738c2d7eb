package configmanagement

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadSweepConfigFile reads a YAML sweep description on top of the defaults.
// Keys missing from the file keep their default values.
func LoadSweepConfigFile(path string) (SweepConfig, error) {
	cfg := DefaultSweepConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read sweep config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse sweep config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with SHOWWERS_* environment variables.
// Malformed numeric or boolean values are logged and ignored.
func ApplyEnv(cfg *SweepConfig) {
	envInt("SHOWWERS_START_EPOCH", &cfg.StartEpoch)
	envInt("SHOWWERS_END_EPOCH", &cfg.EndEpoch)
	envString("SHOWWERS_DECODING_METHOD", &cfg.DecodingMethod)
	envString("SHOWWERS_METRICS", &cfg.Metric)
	envString("SHOWWERS_RESULTS_ROOT", &cfg.ResultsRoot)
	envString("SHOWWERS_OUTPUT_DIR", &cfg.OutputDir)
	envBool("SHOWWERS_RESCORE", &cfg.Rescore)
	envString("SHOWWERS_DB_DRIVER", &cfg.DBDriver)
	envString("SHOWWERS_DB_DSN", &cfg.DBDSN)
	envBool("SHOWWERS_UPLOAD", &cfg.Upload)

	if v := os.Getenv("SHOWWERS_EXP_NAMES"); v != "" {
		cfg.ExpNames = SplitList(v)
	}
	if v := os.Getenv("SHOWWERS_DATASET"); v != "" {
		cfg.Datasets = SplitList(v)
	}
}

// PostgresDSNFromEnv builds a lib/pq connection string from DB_HOST, DB_PORT,
// DB_USER, DB_PASSWORD, DB_NAME and DB_SSLMODE. It returns "" when DB_HOST is unset.
func PostgresDSNFromEnv() string {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return ""
	}
	dbPort := os.Getenv("DB_PORT")
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbName := os.Getenv("DB_NAME")
	dbSSLMode := os.Getenv("DB_SSLMODE")

	if dbPort == "" {
		dbPort = "5432"
	}
	if dbUser == "" {
		dbUser = "postgres"
	}
	if dbPassword == "" {
		log.Println("WARNING: DB_PASSWORD environment variable not set.")
	}
	if dbName == "" {
		dbName = "showwers"
	}
	if dbSSLMode == "" {
		dbSSLMode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		dbHost, dbPort, dbUser, dbPassword, dbName, dbSSLMode)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s is not a valid integer ('%s'), keeping %d. Error: %v", key, v, *dst, err)
		return
	}
	*dst = n
}

func envBool(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: %s is not a valid boolean ('%s'), keeping %t. Error: %v", key, v, *dst, err)
		return
	}
	*dst = b
}

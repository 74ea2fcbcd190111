package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/utils"
)

// QueueSpec is one entry from the optional queues.yaml topology file.
type QueueSpec struct {
	Name     string `yaml:"name"`
	Attempts int    `yaml:"attempts"`
}

type queuesFile struct {
	Queues []QueueSpec `yaml:"queues"`
}

type Config struct {
	Port        string
	DataRoot    string
	RedisAddr   string
	RedisPrefix string
	JWTSecret   string

	// GateTimeout bounds the wait on a conversion prerequisite.
	GateTimeout time.Duration

	// DefaultAttempts is the broker-level retry budget for enqueued jobs,
	// overridable per queue via queues.yaml.
	DefaultAttempts int
	QueueAttempts   map[string]int
}

func Load(log *logger.Logger) (*Config, error) {
	cfg := &Config{
		Port:            utils.GetEnv("PORT", "3500", log),
		DataRoot:        utils.GetEnv("DATA_VOL", "/bilbomd/uploads", log),
		RedisAddr:       utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		RedisPrefix:     utils.GetEnv("REDIS_PREFIX", "bull", log),
		JWTSecret:       utils.GetEnv("JWT_SECRET_KEY", "", log),
		GateTimeout:     time.Duration(utils.GetEnvAsInt("PDB2CRD_GATE_TIMEOUT_SEC", 300, log)) * time.Second,
		DefaultAttempts: utils.GetEnvAsInt("QUEUE_ATTEMPTS", 3, log),
		QueueAttempts:   map[string]int{},
	}

	path := utils.GetEnv("QUEUES_CONFIG", "", log)
	if path != "" {
		if err := cfg.loadQueuesFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadQueuesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read queues config: %w", err)
	}
	var parsed queuesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse queues config: %w", err)
	}
	for _, q := range parsed.Queues {
		if q.Name == "" || q.Attempts <= 0 {
			continue
		}
		c.QueueAttempts[q.Name] = q.Attempts
	}
	return nil
}

// AttemptsFor returns the retry budget for a named queue.
func (c *Config) AttemptsFor(queueName string) int {
	if n, ok := c.QueueAttempts[queueName]; ok {
		return n
	}
	return c.DefaultAttempts
}

package eventstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gopkg.in/yaml.v3"
)

// Driver kinds accepted in Config.Driver
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverDynamo   = "dynamo"
	DriverMongo    = "mongo"
)

// Notifier kinds accepted in NotifierConfig.Kind
const (
	NotifierSNS   = "sns"
	NotifierRedis = "redis"
)

// DefaultTable is used when no table or collection is configured
const DefaultTable = "events"

// Config selects and wires a driver stack
type Config struct {
	Driver   string         `yaml:"driver"`
	DSN      string         `yaml:"dsn"`
	Database string         `yaml:"database"`
	Table    string         `yaml:"table"`
	Migrate  bool           `yaml:"migrate"`
	Verbose  bool           `yaml:"verbose"`
	Notifier NotifierConfig `yaml:"notifier"`
}

// NotifierConfig configures commit notifications. An empty Kind disables them.
type NotifierConfig struct {
	Kind     string `yaml:"kind"`
	TopicArn string `yaml:"topic_arn"`
	Address  string `yaml:"address"`
	Prefix   string `yaml:"prefix"`
}

// LoadConfig reads a YAML file, expanding ${VAR} references from the
// environment
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration
func ParseConfig(data []byte) (*Config, error) {
	config := &Config{Table: DefaultTable}
	err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks that the configuration can be opened
func (c *Config) Validate() error {
	var errs []error

	switch c.Driver {
	case DriverMemory, DriverDynamo:
	case DriverSQLite, DriverMySQL, DriverPostgres:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("dsn is required for driver '%s'", c.Driver))
		}
	case DriverMongo:
		if c.DSN == "" {
			errs = append(errs, errors.New("dsn is required for driver 'mongo'"))
		}
		if c.Database == "" {
			errs = append(errs, errors.New("database is required for driver 'mongo'"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver '%s'", c.Driver))
	}

	switch c.Notifier.Kind {
	case "":
	case NotifierSNS:
		if c.Notifier.TopicArn == "" {
			errs = append(errs, errors.New("notifier.topic_arn is required for sns"))
		}
	case NotifierRedis:
		if c.Notifier.Address == "" {
			errs = append(errs, errors.New("notifier.address is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notifier '%s'", c.Notifier.Kind))
	}

	return errors.Join(errs...)
}

// Open builds the configured driver, wrapped with notifications and
// logging when enabled
func Open(c Config) (Driver, error) {
	err := c.Validate()
	if err != nil {
		return nil, err
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}

	driver, err := openDriver(c)
	if err != nil {
		return nil, err
	}

	switch c.Notifier.Kind {
	case NotifierSNS:
		driver = NewNotificationDriver(NewSNSNotifier(nil, c.Notifier.TopicArn), driver)
	case NotifierRedis:
		client := redis.NewClient(&redis.Options{Addr: c.Notifier.Address})
		driver = NewNotificationDriver(NewRedisNotifier(client, c.Notifier.Prefix), driver)
	}

	if c.Verbose {
		driver = NewVerboseDriver(driver)
	}
	return driver, nil
}

type migrator interface {
	CreateTable() error
}

func openDriver(c Config) (Driver, error) {
	var driver Driver
	switch c.Driver {
	case DriverMemory:
		return NewInMemoryDriver(), nil
	case DriverSQLite:
		driver = NewSQLiteDriver(MustConnectSQLite(c.DSN), c.Table)
	case DriverMySQL:
		driver = NewMySQLDriver(MustConnectMySQL(c.DSN), c.Table)
	case DriverPostgres:
		driver = NewPostgresDriver(MustConnectPostgres(c.DSN), c.Table)
	case DriverDynamo:
		driver = NewDynamoDriver(c.Table)
	case DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(c.DSN))
		if err != nil {
			return nil, fmt.Errorf("failed connecting to mongo: %w", err)
		}
		mongoDriver := NewMongoDriver(client, c.Database, c.Table)
		if c.Migrate {
			err = mongoDriver.CreateIndexes()
			if err != nil {
				return nil, err
			}
		}
		return mongoDriver, nil
	}

	if m, ok := driver.(migrator); ok && c.Migrate {
		err := m.CreateTable()
		if err != nil {
			return nil, err
		}
	}
	return driver, nil
}

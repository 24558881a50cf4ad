package database

import (
	"fmt"
	"time"

	"social_chat_service/pkg/config"

	"go.mongodb.org/mongo-driver/mongo"
)

// Connection definition sql setting
type Connection struct {
	ConnectStr string

	RetryCount    int
	RetryInterval time.Duration
}

// MongoDB definition mongo db
type MongoDB struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// MinIOConnection definition minio
type MinIOConnection struct {
	Endpoint   string
	User       string
	Password   string
	BucketName string
	UseSSL     bool

	RetryCount    int
	RetryInterval time.Duration
}

// KafkaConnection definition kafka
type KafkaConnection struct {
	Brokers       []string
	Topic         string
	RetryCount    int
	RetryInterval time.Duration
}

// PostgresConnection build pgx/gorm connection from config
func PostgresConnection(c config.DatabaseConfig) Connection {
	return Connection{
		ConnectStr: fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
			c.User, c.Password, c.Host, c.Port, c.Database),
		RetryCount:    retryCount(c.RetryCount),
		RetryInterval: time.Duration(c.RetryInterval) * time.Second,
	}
}

// MongoConnection build mongo connection from config
func MongoConnection(c config.DatabaseConfig) Connection {
	return Connection{
		ConnectStr:    fmt.Sprintf("mongodb://%s:%s@%s:%d", c.User, c.Password, c.Host, c.Port),
		RetryCount:    retryCount(c.RetryCount),
		RetryInterval: time.Duration(c.RetryInterval) * time.Second,
	}
}

// MinIOFromConfig build minio connection from config
func MinIOFromConfig(c config.MinIOConfig) MinIOConnection {
	return MinIOConnection{
		Endpoint:      c.Endpoint,
		User:          c.User,
		Password:      c.Password,
		BucketName:    c.BucketName,
		UseSSL:        c.UseSSL,
		RetryCount:    retryCount(c.RetryCount),
		RetryInterval: time.Duration(c.RetryInterval) * time.Second,
	}
}

// KafkaFromConfig build kafka connection from config
func KafkaFromConfig(c config.KafkaConfig) KafkaConnection {
	return KafkaConnection{
		Brokers:       c.Brokers,
		Topic:         c.Topic,
		RetryCount:    retryCount(c.RetryCount),
		RetryInterval: time.Duration(c.RetryInterval) * time.Second,
	}
}

func retryCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

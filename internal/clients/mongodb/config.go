package mongodb

import (
	"fmt"
	"strings"
)

const DefaultPoolSize uint64 = 10

type MongoConfig struct {
	Protocol string // "mongodb" or "mongodb+srv"
	Host     string
	User     string
	Pwd      string
	Params   string
	DBName   string
	PoolSize uint64
}

type MongoStoreOption struct {
	DBName   string
	PoolSize uint64
}

// MongoConnectionBuilder builds MongoDB connection strings.
type MongoConnectionBuilder struct {
	protocol string
	host     string
	user     string
	pwd      string
	params   string
}

func NewMongoConnectionBuilder(p, h string) MongoConnectionBuilder {
	return MongoConnectionBuilder{
		protocol: p,
		host:     h,
	}
}

func (b MongoConnectionBuilder) WithUser(u string) MongoConnectionBuilder {
	b.user = u
	return b
}

func (b MongoConnectionBuilder) WithPassword(p string) MongoConnectionBuilder {
	b.pwd = p
	return b
}

func (b MongoConnectionBuilder) WithConnectionParams(p string) MongoConnectionBuilder {
	b.params = p
	return b
}

// Build returns "[protocol]://[user[:password]@]host[/params]".
// Plain "mongodb" connections require params, "mongodb+srv" ones take them from DNS.
func (b MongoConnectionBuilder) Build() (string, error) {
	if b.protocol == "" || b.host == "" {
		return "", fmt.Errorf("missing required parameters: protocol and host are required")
	}
	if b.protocol == "mongodb" && b.params == "" {
		return "", fmt.Errorf("missing required connection parameters")
	}

	var sb strings.Builder
	sb.WriteString(b.protocol + "://")
	if b.user != "" {
		sb.WriteString(b.user)
		if b.pwd != "" {
			sb.WriteString(":" + b.pwd)
		}
		sb.WriteString("@")
	}
	sb.WriteString(b.host)
	if b.protocol == "mongodb" {
		sb.WriteString("/" + b.params)
	}
	return sb.String(), nil
}

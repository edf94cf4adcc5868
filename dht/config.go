package dht

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/dhtcrawler/internal/correlator"
	"github.com/cenkalti/dhtcrawler/internal/harvest"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v2"
)

// Config for Node.
type Config struct {
	// DHT node will listen on this IP.
	Host string `yaml:"host"`
	// DHT node will listen on this UDP port.
	Port int `yaml:"port"`
	// Node id is derived from this name. A random id is generated if empty.
	NodeIDSeed string `yaml:"node_id_seed"`
	// Present a different id to every remote node, sharing its first half with the remote node's id.
	// Remote nodes keep such ids in their tables and send us more queries.
	NeighborIDs bool `yaml:"neighbor_ids"`
	// Nodes in "host:port" form to contact while the routing table is small.
	BootstrapNodes []string `yaml:"bootstrap_nodes"`

	// Max number of nodes in a bucket.
	BucketSize int `yaml:"bucket_size"`
	// Weight of a newly inserted node.
	NodeDefaultWeight int `yaml:"node_default_weight"`
	// Base interval between health checks of a node.
	NodeUpdateTime time.Duration `yaml:"node_update_time"`
	// Number of outstanding queries that can be told apart.
	TransactionRingSize int `yaml:"transaction_ring_size"`
	// Max number of pending nodes in a task.
	TaskMaxLength int `yaml:"task_max_length"`
	// Max number of nodes returned in find_node and get_peers replies.
	ReturnNodeMaxLength int `yaml:"return_node_max_length"`

	// Global limit of outgoing queries.
	MaxSendsPerSecond int `yaml:"max_sends_per_second"`
	// Every task may send one query in each cycle.
	SendCycleInterval time.Duration `yaml:"send_cycle_interval"`
	// How often the routing table is scanned for nodes to ping.
	CheckInterval time.Duration `yaml:"check_interval"`
	// How often a status line is logged.
	StatusInterval time.Duration `yaml:"status_interval"`
	// Tasks are seeded from bootstrap nodes while the table is smaller than this.
	MinBootstrapTableSize int `yaml:"min_bootstrap_table_size"`
	// The find_node task for the local id stops when the table is larger than this.
	FullTableSize int `yaml:"full_table_size"`
	// Lookup tasks stop after running this long.
	MaxTaskRunTime time.Duration `yaml:"max_task_run_time"`
	// Lookup tasks stop after sending this many queries.
	MaxTaskDispatches int `yaml:"max_task_dispatches"`

	// Enable the JSON-RPC control server.
	RPCEnabled bool `yaml:"rpc_enabled"`
	// Host to listen for RPC server
	RPCHost string `yaml:"rpc_host"`
	// Listen port for RPC server
	RPCPort int `yaml:"rpc_port"`
	// Time to wait for ongoing requests before shutting down RPC HTTP server.
	RPCShutdownTimeout time.Duration `yaml:"rpc_shutdown_timeout"`

	// Database file to save harvested info hashes. Harvest is only logged if empty.
	Database string `yaml:"database"`
	// Number of recent observations remembered to skip duplicate database writes.
	HarvestCacheSize int `yaml:"harvest_cache_size"`
	// Log every harvested message.
	LogHarvest bool `yaml:"log_harvest"`

	// Harvester receives collected data in addition to the database.
	Harvester harvest.Harvester `yaml:"-"`
	// Clock used by the routing table and the scheduler.
	Clock clock.Clock `yaml:"-"`
}

const bucketSize = 16

// DefaultConfig for Node.
var DefaultConfig = Config{
	Host: "0.0.0.0",
	Port: 6881,
	BootstrapNodes: []string{
		"router.utorrent.com:6881",
		"grenade.genua.fr:6880",
		"dht.transmissionbt.com:6881",
		"router.bittorrent.com:6881",
	},
	BucketSize:            bucketSize,
	NodeDefaultWeight:     5,
	NodeUpdateTime:        900 * time.Second,
	TransactionRingSize:   correlator.MaxSize,
	TaskMaxLength:         1024,
	ReturnNodeMaxLength:   bucketSize,
	MaxSendsPerSecond:     1024,
	SendCycleInterval:     time.Second / 1024,
	CheckInterval:         900 * time.Second / bucketSize,
	StatusInterval:        time.Minute,
	MinBootstrapTableSize: bucketSize * bucketSize,
	FullTableSize:         2 * bucketSize * bucketSize,
	MaxTaskRunTime:        600 * time.Second,
	MaxTaskDispatches:     1024 * 1024,
	RPCHost:               "127.0.0.1",
	RPCPort:               7881,
	RPCShutdownTimeout:    5 * time.Second,
	Database:              "~/.dhtcrawler/harvest.db",
	HarvestCacheSize:      harvest.DefaultCacheSize,
}

// LoadConfig reads a YAML file over DefaultConfig. A missing file is not an error.
// "~" in the file name is expanded to the home directory.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	filename, err := homedir.Expand(filename)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate returns an error describing the first invalid field.
func (c *Config) Validate() error {
	if _, err := netip.ParseAddr(c.Host); err != nil {
		return fmt.Errorf("invalid host: %w", err)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for _, s := range c.BootstrapNodes {
		if _, _, err := net.SplitHostPort(s); err != nil {
			return fmt.Errorf("invalid bootstrap node: %w", err)
		}
	}
	if c.BucketSize <= 0 {
		return errors.New("bucket size must be positive")
	}
	if c.NodeUpdateTime <= 0 {
		return errors.New("node update time must be positive")
	}
	if c.TransactionRingSize <= 0 || c.TransactionRingSize > correlator.MaxSize {
		return fmt.Errorf("transaction ring size must be between 1 and %d", correlator.MaxSize)
	}
	if c.TaskMaxLength <= 0 {
		return errors.New("task max length must be positive")
	}
	if c.ReturnNodeMaxLength < 0 {
		return errors.New("return node max length cannot be negative")
	}
	if c.MaxSendsPerSecond <= 0 {
		return errors.New("max sends per second must be positive")
	}
	if c.SendCycleInterval <= 0 || c.CheckInterval <= 0 || c.StatusInterval <= 0 {
		return errors.New("loop intervals must be positive")
	}
	if c.FullTableSize <= 0 {
		return errors.New("full table size must be positive")
	}
	if c.MaxTaskRunTime <= 0 || c.MaxTaskDispatches <= 0 {
		return errors.New("task limits must be positive")
	}
	if c.RPCEnabled && (c.RPCPort < 0 || c.RPCPort > 65535) {
		return fmt.Errorf("invalid rpc port: %d", c.RPCPort)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cenkalti/dhtcrawler/dht"
	"github.com/cenkalti/dhtcrawler/internal/console"
	"github.com/cenkalti/dhtcrawler/internal/harvest"
	"github.com/cenkalti/dhtcrawler/internal/jsonutil"
	"github.com/cenkalti/dhtcrawler/internal/logger"
	"github.com/cenkalti/dhtcrawler/internal/magnet"
	"github.com/cenkalti/dhtcrawler/rpcclient"
	"github.com/cenkalti/log"
	"github.com/urfave/cli"
)

const defaultConfig = "~/.dhtcrawler.yaml"

var (
	app = cli.NewApp()
	clt *rpcclient.Client
)

func main() {
	app.Name = "dhtcrawler"
	app.Usage = "BitTorrent DHT crawler"
	app.Version = dht.Version
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug,d",
			Usage: "enable debug log",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level: debug, info, notice, warning, error, critical",
			Value: "info",
		},
	}
	app.Before = handleBeforeCommand
	rpcFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "url",
			Usage: "URL of the RPC server",
			Value: fmt.Sprintf("http://%s:%d", dht.DefaultConfig.RPCHost, dht.DefaultConfig.RPCPort),
		},
	}
	taskCommand := func(name, usage string) cli.Command {
		return cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "<query type> <key>",
			Flags:     rpcFlags,
			Before:    handleBeforeClient,
			After:     handleAfterClient,
			Action:    handleControl,
		}
	}
	app.Commands = []cli.Command{
		{
			Name:  "run",
			Usage: "run the crawler",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config,c",
					Usage: "read config from `FILE`",
					Value: defaultConfig,
				},
				cli.IntFlag{
					Name:  "port,p",
					Usage: "UDP port of the DHT node",
				},
				cli.BoolFlag{
					Name:  "rpc",
					Usage: "enable the control RPC server",
				},
			},
			Action: handleRun,
		},
		{
			Name:   "version",
			Usage:  "print the version of the running crawler",
			Flags:  rpcFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Action: handleVersion,
		},
		{
			Name:   "status",
			Usage:  "show node stats",
			Flags:  rpcFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Action: handleStatus,
		},
		{
			Name:   "table",
			Usage:  "show the routing table",
			Flags:  rpcFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Action: handleTable,
		},
		{
			Name:   "counters",
			Usage:  "show message counters",
			Flags:  rpcFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Action: handleCounters,
		},
		{
			Name:      "tasks",
			Usage:     "list tasks",
			ArgsUsage: "[query type]",
			Flags:     rpcFlags,
			Before:    handleBeforeClient,
			After:     handleAfterClient,
			Action:    handleTasks,
		},
		{
			Name:      "task",
			Usage:     "show a task with its pending nodes",
			ArgsUsage: "<query type> <key>",
			Flags:     rpcFlags,
			Before:    handleBeforeClient,
			After:     handleAfterClient,
			Action:    handleTask,
		},
		taskCommand("push", "add a lookup task"),
		taskCommand("start", "start a task"),
		taskCommand("stop", "stop a task"),
		taskCommand("remove", "remove a task"),
		{
			Name:   "console",
			Usage:  "show live status of the crawler",
			Flags:  rpcFlags,
			Before: handleBeforeClient,
			After:  handleAfterClient,
			Action: handleConsole,
		},
		{
			Name:      "harvest",
			Usage:     "list harvested info hashes",
			ArgsUsage: "[info hash]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "database",
					Usage: "harvest database `FILE`",
					Value: dht.DefaultConfig.Database,
				},
			},
			Action: handleHarvest,
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func handleBeforeCommand(c *cli.Context) error {
	level, err := logger.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	if c.Bool("debug") {
		level = log.DEBUG
	}
	logger.SetLevel(level)
	return nil
}

func handleRun(c *cli.Context) error {
	cfg, err := dht.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.Bool("rpc") {
		cfg.RPCEnabled = true
	}
	n, err := dht.New(*cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return n.Run(ctx)
}

func handleBeforeClient(c *cli.Context) error {
	clt = rpcclient.New(c.String("url"))
	return nil
}

func handleAfterClient(c *cli.Context) error {
	if clt != nil {
		return clt.Close()
	}
	return nil
}

func handleVersion(c *cli.Context) error {
	version, err := clt.ServerVersion()
	if err != nil {
		return err
	}
	_, _ = os.Stdout.WriteString(version + "\n")
	return nil
}

func handleStatus(c *cli.Context) error {
	stats, err := clt.GetStats()
	if err != nil {
		return err
	}
	b, err := jsonutil.MarshalCompactPretty(stats)
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(b)
	return nil
}

func handleTable(c *cli.Context) error {
	buckets, err := clt.GetTable()
	if err != nil {
		return err
	}
	return printPretty(buckets)
}

func handleCounters(c *cli.Context) error {
	counters, err := clt.GetCounters()
	if err != nil {
		return err
	}
	return printPretty(counters)
}

func handleTasks(c *cli.Context) error {
	tasks, err := clt.ListTasks(c.Args().Get(0))
	if err != nil {
		return err
	}
	for i := range tasks {
		b, err := jsonutil.MarshalCompactPretty(tasks[i])
		if err != nil {
			return err
		}
		_, _ = os.Stdout.Write(b)
		_, _ = os.Stdout.WriteString("\n")
	}
	return nil
}

func handleTask(c *cli.Context) error {
	qt, key, err := taskArgs(c)
	if err != nil {
		return err
	}
	task, err := clt.GetTask(qt, key)
	if err != nil {
		return err
	}
	b, err := jsonutil.MarshalCompactPretty(task)
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(b)
	return nil
}

func handleControl(c *cli.Context) error {
	qt, key, err := taskArgs(c)
	if err != nil {
		return err
	}
	result, err := clt.Control(c.Command.Name, qt, key)
	if err != nil {
		return err
	}
	_, _ = os.Stdout.WriteString(result + "\n")
	return nil
}

func taskArgs(c *cli.Context) (qt, key string, err error) {
	if c.NArg() != 2 {
		return "", "", errors.New("query type and key must be given")
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

func handleConsole(c *cli.Context) error {
	con := console.New(clt)
	return con.Run()
}

func handleHarvest(c *cli.Context) error {
	s, err := harvest.Open(c.String("database"), 0)
	if err != nil {
		return err
	}
	defer s.Close()
	if c.NArg() > 0 {
		ih, err := magnet.ParseInfoHash(c.Args().Get(0))
		if err != nil {
			return err
		}
		r, err := s.Get(ih)
		if err != nil {
			return err
		}
		if r == nil {
			return errors.New("info hash not found")
		}
		return printPretty(newHarvestRecord(*r))
	}
	records, err := s.Records()
	if err != nil {
		return err
	}
	for _, r := range records {
		fmt.Printf("%s first_seen=%s last_seen=%s get_peers=%d announces=%d peers=%d\n",
			r.InfoHash, r.FirstSeen.Format("2006-01-02 15:04:05"), r.LastSeen.Format("2006-01-02 15:04:05"),
			r.GetPeers, r.Announces, len(r.Peers))
	}
	return nil
}

type harvestRecord struct {
	InfoHash  string
	Magnet    string
	FirstSeen string
	LastSeen  string
	GetPeers  int
	Announces int
	Peers     map[string]string
}

func newHarvestRecord(r harvest.Record) harvestRecord {
	peers := make(map[string]string, len(r.Peers))
	for addr, source := range r.Peers {
		peers[addr.String()] = source
	}
	return harvestRecord{
		InfoHash:  r.InfoHash.String(),
		Magnet:    (&magnet.Magnet{InfoHash: r.InfoHash}).String(),
		FirstSeen: r.FirstSeen.Format("2006-01-02 15:04:05"),
		LastSeen:  r.LastSeen.Format("2006-01-02 15:04:05"),
		GetPeers:  r.GetPeers,
		Announces: r.Announces,
		Peers:     peers,
	}
}

func printPretty(v any) error {
	b, err := jsonutil.MarshalPretty(v)
	if err != nil {
		return err
	}
	_, _ = os.Stdout.Write(b)
	_, _ = os.Stdout.WriteString("\n")
	return nil
}

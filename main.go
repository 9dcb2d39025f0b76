package main

import (
	"os"
	"runtime"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/urfave/cli"

	"github.com/driftlog/driftlog/server"
)

func main() {
	app := cli.NewApp()
	app.Name = "driftlog"
	app.Usage = "Partitioned log broker with dynamic configuration"
	app.Version = server.Version
	app.Flags = getFlags()
	app.Action = func(c *cli.Context) error {
		config, err := server.NewConfig(c.String("config"))
		if err != nil {
			return err
		}
		if id := c.String("id"); id != "" {
			config.Clustering.ServerID = id
		}
		if c.IsSet("broker-id") {
			config.Clustering.BrokerID = int32(c.Int("broker-id"))
		}
		if ns := c.String("namespace"); ns != "" {
			config.Clustering.Namespace = ns
		}
		if dir := c.String("data-dir"); dir != "" {
			config.DataDir = dir
		}
		if c.IsSet("port") {
			config.Port = c.Int("port")
		}
		if servers := normalizeServers(c.StringSlice("nats-server")); len(servers) > 0 {
			config.NATS.Servers = servers
		}
		if servers := normalizeServers(c.StringSlice("zk-server")); len(servers) > 0 {
			config.ZooKeeper.Servers = servers
		}
		if c.IsSet("level") {
			level, err := server.GetLogLevel(c.String("level"))
			if err != nil {
				return err
			}
			config.LogLevel = level
		}

		server := server.New(config)
		if err := server.Start(); err != nil {
			return err
		}
		runtime.Goexit()
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		panic(err)
	}
}

func getFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load configuration from `FILE`",
		},
		cli.StringFlag{
			Name:  "server-id, id",
			Usage: "ID of the server in the cluster if there is no stored ID",
		},
		cli.IntFlag{
			Name:  "broker-id, b",
			Usage: "numeric broker ID used in replication state",
		},
		cli.StringFlag{
			Name:  "namespace, ns",
			Usage: "cluster namespace",
			Value: server.DefaultNamespace,
		},
		cli.StringSliceFlag{
			Name:  "nats-server, n",
			Usage: "connect to NATS server at `ADDR` (repeatable or comma-separated)",
			Value: &cli.StringSlice{nats.DefaultURL},
		},
		cli.StringSliceFlag{
			Name:  "zk-server, z",
			Usage: "connect to ZooKeeper server at `ADDR` (repeatable or comma-separated)",
		},
		cli.StringFlag{
			Name:  "data-dir, d",
			Usage: "store data in `DIR` (default: \"/tmp/driftlog/<namespace>\")",
		},
		cli.IntFlag{
			Name:  "port, p",
			Usage: "port to bind to",
			Value: server.DefaultPort,
		},
		cli.StringFlag{
			Name:  "level, l",
			Usage: "logging level [debug|info|warn|error]",
			Value: "info",
		},
	}
}

// normalizeServers splits any comma-separated flag values and trims
// whitespace so both repeated flags and comma lists work.
func normalizeServers(servers []string) []string {
	var result []string
	for _, s := range servers {
		parts := strings.Split(s, ",")
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

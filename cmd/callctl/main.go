// Command callctl calls methods on remote services and serves a demo
// service for trying it out.
//
//	callctl serve --addr 127.0.0.1:9000
//	callctl call --locator 127.0.0.1:9000 Echo.Upper '"hello"'
//	callctl call --registry 127.0.0.1:2379 --locator 'registry://Echo?version=1.0.0' Echo.Echo '"hi"'
package main

import (
	"os"
	"strings"

	"callproxy/loadbalance"
	"callproxy/registry"
	"callproxy/resolver"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "callctl"
	app.Usage = "call remote methods over the frame protocol"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: "Log at debug level",
		},
		cli.StringFlag{
			Name:   "registry",
			Usage:  "Comma-separated etcd endpoints used for service discovery",
			EnvVar: "CALLCTL_REGISTRY",
		},
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:      "call",
			Usage:     "Call a method and print its result as JSON",
			ArgsUsage: "Service.Method [JSON arguments...]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "locator, l",
					Usage: "Endpoint locator: host:port, scheme://host:port or registry://Service",
				},
				cli.StringFlag{
					Name:  "codec, c",
					Value: "json",
					Usage: "Wire codec: json, binary or msgpack",
				},
				cli.DurationFlag{
					Name:  "timeout, t",
					Value: 10e9,
					Usage: "Call timeout",
				},
				cli.IntFlag{
					Name:  "retries",
					Usage: "Retries when the connection closes mid-call",
				},
				cli.StringFlag{
					Name:  "balancer",
					Value: "round-robin",
					Usage: "Registry instance selection: round-robin, weighted-random or consistent-hash",
				},
				cli.StringSliceFlag{
					Name:  "dns",
					Usage: "Name server (host:port) used to resolve the locator; may be repeated",
				},
				cli.BoolFlag{
					Name:  "async",
					Usage: "Issue the call through an asynchronous client and wait on its handle",
				},
			},
			Action: callCommand,
		},
		cli.Command{
			Name:  "serve",
			Usage: "Serve the demo Echo service",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Value: "127.0.0.1:9000",
					Usage: "Listen address",
				},
				cli.StringFlag{
					Name:  "advertise",
					Usage: "Address announced to the registry; defaults to the listen address",
				},
				cli.StringFlag{
					Name:  "service-version",
					Value: "1.0.0",
					Usage: "Semantic version announced to the registry",
				},
				cli.Float64Flag{
					Name:  "rate",
					Usage: "Requests per second admitted; 0 means unlimited",
				},
			},
			Action: serveCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		PrintFatal(os.Stderr, "%v", err)
	}
}

func newLogger(c *cli.Context) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if c.GlobalBool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openRegistry connects to the etcd endpoints given by --registry, or
// returns nil if none were given.
func openRegistry(c *cli.Context, log *zap.Logger) (*registry.EtcdRegistry, error) {
	eps := c.GlobalString("registry")
	if eps == "" {
		return nil, nil
	}
	return registry.NewEtcdRegistry(strings.Split(eps, ","), log)
}

// newResolver picks the address resolver for locator.
func newResolver(c *cli.Context, locator string, reg registry.Registry) (resolver.AddressResolver, error) {
	if strings.HasPrefix(locator, resolver.RegistryScheme+"://") {
		if reg == nil {
			return nil, cli.NewExitError("a registry:// locator needs --registry", 2)
		}
		name := c.String("balancer")
		if loadbalance.New(name) == nil {
			return nil, cli.NewExitError("unknown balancer "+name, 2)
		}
		return resolver.NewRegistryGroup(reg, func() loadbalance.Balancer { return loadbalance.New(name) })
	}
	if servers := c.StringSlice("dns"); len(servers) != 0 {
		return resolver.NewDNSGroup(resolver.DNSConfig{Servers: servers, TTL: 30e9})
	}
	return resolver.NewStaticGroup(nil)
}

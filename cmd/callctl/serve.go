package main

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"callproxy/failure"
	"callproxy/middleware"
	"callproxy/registry"
	"callproxy/server"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

// Echo is the demo service.
type Echo struct{}

func (*Echo) Echo(args *string, reply *string) error {
	*reply = *args
	return nil
}

func (*Echo) Upper(args *string, reply *string) error {
	*reply = strings.ToUpper(*args)
	return nil
}

func (*Echo) Reverse(args *[]any, reply *[]any) error {
	*reply = slices.Clone(*args)
	slices.Reverse(*reply)
	return nil
}

func (*Echo) Sum(args *[]float64, reply *float64) error {
	for _, v := range *args {
		*reply += v
	}
	return nil
}

// FailArgs selects the failure Echo.Fail reports.
type FailArgs struct {
	Kind    string `json:"kind" msgpack:"kind"`
	Message string `json:"message" msgpack:"message"`
}

func (*Echo) Fail(args *FailArgs, _ *struct{}) error {
	return failure.New(failure.Kind(args.Kind), "%s", args.Message)
}

func (*Echo) Sleep(ctx context.Context, args *float64, reply *float64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(*args * float64(time.Second))):
		*reply = *args
		return nil
	}
}

func serveCommand(c *cli.Context) (err error) {
	log := newLogger(c)
	defer log.Sync()

	svr := server.NewServer(log)
	if err := svr.Register(new(Echo)); err != nil {
		return err
	}
	if err := svr.SetVersion(c.String("service-version")); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	svr.Use(middleware.Recover(log))
	svr.Use(middleware.Logging(log))
	if r := c.Float64("rate"); r > 0 {
		svr.Use(middleware.RateLimit(r, max(int(r), 1)))
	}
	svr.Use(middleware.Timeout(time.Minute))

	er, err := openRegistry(c, log)
	if err != nil {
		return err
	}
	var reg registry.Registry
	if er != nil {
		defer er.Close()
		reg = er
	}

	addr := c.String("addr")
	advertise := c.String("advertise")
	if advertise == "" {
		advertise = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	served := make(chan error, 1)
	go func() { served <- svr.Serve("tcp", addr, advertise, reg) }()

	select {
	case err := <-served:
		return err
	case <-time.After(100 * time.Millisecond):
	}
	PrintErr(os.Stderr, "serving %s on %s", Cyan("Echo"), Cyan(svr.Addr().String()))

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down", zap.String("addr", addr))
	if err := svr.Shutdown(5 * time.Second); err != nil {
		return err
	}
	PrintErr(os.Stderr, "%s", Green("stopped"))
	return <-served
}

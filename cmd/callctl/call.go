package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"callproxy/client"
	"callproxy/endpoint"
	"callproxy/failure"
	"callproxy/method"
	"callproxy/registry"

	"github.com/urfave/cli"
)

func callCommand(c *cli.Context) (err error) {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: callctl call [flags] Service.Method [JSON arguments...]", 2)
	}
	iface, name, ok := strings.Cut(c.Args().First(), ".")
	if !ok || iface == "" || name == "" {
		return cli.NewExitError(fmt.Sprintf("%q is not Service.Method", c.Args().First()), 2)
	}
	args, err := parseArgs(c.Args().Tail())
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	locator := c.String("locator")
	if locator == "" {
		return cli.NewExitError("--locator is required", 2)
	}

	log := newLogger(c)
	defer log.Sync()

	er, err := openRegistry(c, log)
	if err != nil {
		return err
	}
	var reg registry.Registry
	if er != nil {
		defer er.Close()
		reg = er
	}
	res, err := newResolver(c, locator, reg)
	if err != nil {
		return err
	}

	async := c.Bool("async")
	var opts []method.Option
	if async {
		opts = append(opts, method.ReturnsHandle())
	}
	m := method.New(iface, name, opts...)
	cl, err := client.Dial(client.Config{
		Locator:   locator,
		Interface: iface,
		Methods:   []*method.Method{m},
		Resolver:  res,
		Async:     async,
		Options: []endpoint.Option{
			endpoint.WithCodec(c.String("codec")),
			endpoint.WithTimeout(c.Duration("timeout")),
			endpoint.WithRetry(c.Int("retries"), endpoint.DefaultRetryDelay),
			endpoint.WithLogger(log),
		},
	})
	if err != nil {
		return err
	}
	defer cl.Close()

	PrintErr(os.Stderr, "calling %s on %s", Cyan(m.String()), Cyan(cl.String()))
	ctx := context.Background()
	var v any
	if async {
		p, gerr := client.Go(ctx, cl, m, args...)
		if gerr != nil {
			return gerr
		}
		out := p.Await()
		// Handles carry the raw cause; reconcile it like a synchronous call would.
		v, err = out.Value, failure.Translate(out.Err, m)
	} else {
		v, err = cl.Dispatch(ctx, m, args...)
	}
	if err != nil {
		return describe(err)
	}

	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	PrintErr(os.Stderr, "%s", Green("ok"))
	return nil
}

// parseArgs decodes each argument as JSON. Arguments that are not valid
// JSON are passed as strings.
func parseArgs(raw []string) ([]any, error) {
	args := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			if strings.TrimSpace(s) == "" {
				return nil, errors.New("empty argument")
			}
			v = s
		}
		args = append(args, v)
	}
	return args, nil
}

// describe turns a call failure into an exit error naming its class.
func describe(err error) error {
	class := "failed"
	var ue *failure.UndeclaredError
	switch {
	case err == failure.ErrSessionClosed:
		class = "session closed"
	case errors.As(err, &ue):
		class = "undeclared failure"
	default:
		if k, ok := failure.KindOf(err); ok {
			class = string(k)
		}
	}
	return cli.NewExitError(fmt.Sprintf("%s %s", Yellow("["+class+"]"), err), 1)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	defs "mountkit/definitions"
	log "mountkit/logger"
	"mountkit/pkg/configstack"
	"mountkit/pkg/mount"
	"mountkit/pkg/oci"
	"mountkit/pkg/provision"
	"mountkit/pkg/rootfs"
	"mountkit/pkg/tracer"
	"mountkit/pkg/types"
)

// Version is set with -ldflags "-X main.Version=...".
var Version = "dev"

type app struct {
	cfg      *configstack.Config
	shutdown func(context.Context) error
}

func main() {
	a := &app{}
	if err := a.cli().Run(os.Args); err != nil {
		log.ReportError(err)
		os.Exit(1)
	}
}

func (a *app) cli() *cli.App {
	return &cli.App{
		Name:    defs.ServiceName,
		Usage:   "validate and perform bind, loop and device mounts inside a container rootfs",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "INI config file, overrides discovery",
				EnvVars: []string{defs.ConfEnv},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (trace, debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging with caller information",
			},
			&cli.StringFlag{
				Name:    "rootfs",
				Aliases: []string{"r"},
				Usage:   "absolute path of the container rootfs",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Usage:     "print paths resolved inside the rootfs",
				ArgsUsage: "PATH...",
				Action:    a.resolve,
			},
			{
				Name:      "device",
				Usage:     "bind mount device files into the rootfs",
				ArgsUsage: "SOURCE[:DESTINATION][:ACCESS]...",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "validate only and print the OCI devices and cgroup rules as JSON",
					},
				},
				Action: a.device,
			},
			{
				Name:      "bind",
				Usage:     "bind mount a host path into the rootfs",
				ArgsUsage: "SOURCE DESTINATION",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "readonly", Aliases: []string{"ro"}},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "validate only and print the OCI mount as JSON",
					},
				},
				Action: a.bind,
			},
			{
				Name:      "squashfs",
				Usage:     "loop mount a squashfs image inside the rootfs",
				ArgsUsage: "IMAGE MOUNTPOINT",
				Action:    a.squashfs,
			},
			{
				Name:      "umount",
				Usage:     "unmount everything stacked on a host path",
				ArgsUsage: "TARGET",
				Action:    a.umount,
			},
		},
	}
}

func (a *app) before(c *cli.Context) error {
	var err error
	if path := c.String("config"); path != "" {
		a.cfg, err = configstack.LoadFile(path)
	} else {
		a.cfg, err = configstack.LoadDiscovered()
	}
	if err != nil {
		return err
	}

	if lvl := c.String("log-level"); lvl != "" {
		a.cfg.Log.Level = lvl
	}
	if c.Bool("debug") {
		a.cfg.Log.Debug = true
	}
	if err := a.cfg.Apply(); err != nil {
		return err
	}

	a.shutdown, err = tracer.Setup(c.Context, a.cfg.Tracing)
	return err
}

func (a *app) after(c *cli.Context) error {
	if a.shutdown == nil {
		return nil
	}
	return a.shutdown(c.Context)
}

func (a *app) runner(c *cli.Context) (*provision.Runner, error) {
	root := c.String("rootfs")
	if root == "" {
		return nil, fmt.Errorf("--rootfs is required")
	}
	r := provision.NewRunner(root, types.CurrentIdentity())
	r.DefaultAccess = a.cfg.DefaultAccess
	return r, nil
}

func expectArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s expects %d argument(s), got %d", c.Command.Name, n, c.NArg())
	}
	return nil
}

func (a *app) resolve(c *cli.Context) error {
	root := c.String("rootfs")
	if root == "" {
		return fmt.Errorf("--rootfs is required")
	}
	if c.NArg() == 0 {
		return fmt.Errorf("resolve expects at least one path")
	}
	for _, p := range c.Args().Slice() {
		resolved, err := rootfs.ResolveWithinRootfs(root, p)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, resolved)
	}
	return nil
}

func (a *app) device(c *cli.Context) error {
	r, err := a.runner(c)
	if err != nil {
		return err
	}
	if c.NArg() == 0 {
		return fmt.Errorf("device expects at least one request")
	}

	if !c.Bool("dry-run") {
		_, err = r.Devices(c.Context, c.Args().Slice())
		return err
	}

	dms, err := r.ParseDevices(c.Context, c.Args().Slice())
	if err != nil {
		return err
	}
	devices, rules, err := oci.Devices(dms)
	if err != nil {
		return err
	}
	return printJSON(c, struct {
		Devices []specs.LinuxDevice       `json:"devices"`
		Rules   []specs.LinuxDeviceCgroup `json:"deviceCgroupRules"`
	}{devices, rules})
}

func (a *app) bind(c *cli.Context) error {
	r, err := a.runner(c)
	if err != nil {
		return err
	}
	if err := expectArgs(c, 2); err != nil {
		return err
	}
	source, destination := c.Args().Get(0), c.Args().Get(1)

	if !c.Bool("dry-run") {
		_, err = r.Bind(c.Context, source, destination, c.Bool("readonly"))
		return err
	}

	var flags uintptr
	if c.Bool("readonly") {
		flags = unix.MS_RDONLY
	}
	m, err := mount.NewMount(source, destination, flags, r.Rootfs, r.Identity)
	if err != nil {
		return err
	}
	return printJSON(c, oci.SpecMount(m))
}

func (a *app) squashfs(c *cli.Context) error {
	r, err := a.runner(c)
	if err != nil {
		return err
	}
	if err := expectArgs(c, 2); err != nil {
		return err
	}
	_, err = r.Squashfs(c.Context, c.Args().Get(0), c.Args().Get(1))
	return err
}

func (a *app) umount(c *cli.Context) error {
	if err := expectArgs(c, 1); err != nil {
		return err
	}
	return mount.Unmount(c.Args().First())
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

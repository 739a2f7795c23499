package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/ggoodman/mcp-stdio-go/client"
	"github.com/ggoodman/mcp-stdio-go/internal/config"
	"github.com/ggoodman/mcp-stdio-go/mcp"
	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
)

// Options are the global flags. Defaults come from the environment.
type Options struct {
	Server     string        `short:"s" long:"server" required:"true" description:"Server command to spawn"`
	ServerArgs []string      `short:"a" long:"arg" description:"Argument passed to the server command (repeatable)"`
	Dir        string        `long:"dir" description:"Working directory of the server process"`
	Timeout    time.Duration `long:"timeout" description:"Per-request timeout"`
	Grace      time.Duration `long:"startup-grace" description:"Delay between spawning the server and sending initialize"`
	LogLevel   string        `long:"log-level" description:"Log level (debug, info, warn, error)"`
	Stderr     bool          `long:"server-stderr" description:"Copy the server's stderr to ours instead of logging it"`

	cfg config.Client
}

func newOptions() (*Options, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	return &Options{
		Timeout:  cfg.RequestTimeout,
		Grace:    cfg.StartupGrace,
		LogLevel: cfg.Level,
		cfg:      cfg,
	}, nil
}

func addCommands(p *flags.Parser, opts *Options) {
	add := func(name, short string, cmd any) {
		if _, err := p.AddCommand(name, short, short, cmd); err != nil {
			panic(err)
		}
	}
	add("tools", "List the server's tools", &ToolsCommand{opts: opts})
	add("call", "Call a tool", &CallCommand{opts: opts})
	add("resources", "List resources and resource templates", &ResourcesCommand{opts: opts})
	add("read", "Read a resource", &ReadCommand{opts: opts})
	add("prompts", "List prompts", &PromptsCommand{opts: opts})
	add("prompt", "Render a prompt", &PromptCommand{opts: opts})
	add("ping", "Check the server responds", &PingCommand{opts: opts})
}

// session connects, runs fn and closes the server.
func (o *Options) session(fn func(ctx context.Context, c *client.Client) error) (err error) {
	logging := o.cfg.Logging
	logging.Level = o.LogLevel
	log, err := logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	copts := []client.Option{
		client.WithArgs(o.ServerArgs...),
		client.WithDir(o.Dir),
		client.WithLogger(log),
		client.WithRequestTimeout(o.Timeout),
		client.WithStartupGrace(o.Grace),
		client.WithShutdownTimeout(o.cfg.ShutdownTimeout),
		client.WithMetrics(reg),
	}
	if o.Stderr {
		copts = append(copts, client.WithStderr(os.Stderr))
	}

	c := client.New(o.Server, copts...)
	if _, err := c.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if o.cfg.MetricsFile != "" {
			if werr := prometheus.WriteToTextfile(o.cfg.MetricsFile, reg); werr != nil {
				log.Error("mcp_client.metrics.write_fail", slog.String("err", werr.Error()))
			}
		}
	}()
	return fn(ctx, c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// toolError marks a tool call that returned isError. The result has already
// been printed.
type toolError struct{ name string }

func (e *toolError) Error() string { return "tool " + e.name + " reported an error" }

type ToolsCommand struct{ opts *Options }

func (cmd *ToolsCommand) Execute([]string) error {
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		tools, err := c.ListTools(ctx)
		if err != nil {
			return err
		}
		bold := color.New(color.Bold)
		for _, t := range tools {
			bold.Println(t.Name)
			if t.Description != "" {
				fmt.Println("  " + strings.ReplaceAll(t.Description, "\n", "\n  "))
			}
		}
		return nil
	})
}

type CallCommand struct {
	opts *Options
	Args struct {
		Tool      string `positional-arg-name:"tool" required:"yes"`
		Arguments string `positional-arg-name:"json-arguments"`
	} `positional-args:"yes"`
}

func (cmd *CallCommand) Execute([]string) error {
	var args map[string]any
	if cmd.Args.Arguments != "" {
		if err := json.Unmarshal([]byte(cmd.Args.Arguments), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		res, err := c.CallTool(ctx, cmd.Args.Tool, args)
		if err != nil {
			return err
		}
		return printToolResult(os.Stdout, cmd.Args.Tool, res)
	})
}

func printToolResult(w io.Writer, name string, res *mcp.CallToolResult) error {
	out := color.New(color.Reset)
	if res.IsError {
		out = color.New(color.FgRed)
	}
	for _, block := range res.Content {
		switch block.Type {
		case mcp.ContentTypeText:
			out.Fprintln(w, block.Text)
		default:
			if err := printJSON(w, block); err != nil {
				return err
			}
		}
	}
	if res.IsError {
		return &toolError{name: name}
	}
	return nil
}

type ResourcesCommand struct{ opts *Options }

func (cmd *ResourcesCommand) Execute([]string) error {
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		resources, err := c.ListResources(ctx)
		if err != nil {
			return err
		}
		templates, err := c.ListResourceTemplates(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, map[string]any{"resources": resources, "resourceTemplates": templates})
	})
}

type ReadCommand struct {
	opts *Options
	Args struct {
		URI string `positional-arg-name:"uri" required:"yes"`
	} `positional-args:"yes"`
}

func (cmd *ReadCommand) Execute([]string) error {
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		res, err := c.ReadResource(ctx, cmd.Args.URI)
		if err != nil {
			return err
		}
		for _, content := range res.Contents {
			if content.Text != "" {
				fmt.Println(content.Text)
				continue
			}
			if err := printJSON(os.Stdout, content); err != nil {
				return err
			}
		}
		return nil
	})
}

type PromptsCommand struct{ opts *Options }

func (cmd *PromptsCommand) Execute([]string) error {
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		prompts, err := c.ListPrompts(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, prompts)
	})
}

type PromptCommand struct {
	opts *Options
	Args struct {
		Name      string   `positional-arg-name:"name" required:"yes"`
		Arguments []string `positional-arg-name:"key=value"`
	} `positional-args:"yes"`
}

func (cmd *PromptCommand) Execute([]string) error {
	args := make(map[string]string, len(cmd.Args.Arguments))
	for _, kv := range cmd.Args.Arguments {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("prompt argument %q: expected key=value", kv)
		}
		args[k] = v
	}
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		res, err := c.GetPrompt(ctx, cmd.Args.Name, args)
		if err != nil {
			return err
		}
		role := color.New(color.FgCyan, color.Bold)
		for _, m := range res.Messages {
			role.Printf("[%s] ", m.Role)
			fmt.Println(m.Content.Text)
		}
		return nil
	})
}

type PingCommand struct{ opts *Options }

func (cmd *PingCommand) Execute([]string) error {
	return cmd.opts.session(func(ctx context.Context, c *client.Client) error {
		start := time.Now()
		if err := c.Ping(ctx); err != nil {
			return err
		}
		fmt.Printf("pong in %s\n", time.Since(start).Round(time.Microsecond))
		return nil
	})
}
